package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/pointgen-backend/internal/auth"
	"github.com/yungbote/pointgen-backend/internal/domain/generation"
	"github.com/yungbote/pointgen-backend/internal/domain/geometry"
	"github.com/yungbote/pointgen-backend/internal/engine"
	"github.com/yungbote/pointgen-backend/internal/observability"
	"github.com/yungbote/pointgen-backend/internal/pkg/ply"
	"github.com/yungbote/pointgen-backend/internal/platform/apierr"
	"github.com/yungbote/pointgen-backend/internal/platform/ctxutil"
	"github.com/yungbote/pointgen-backend/internal/platform/logger"
	"github.com/yungbote/pointgen-backend/internal/storage"
)

// ReadinessChecker reports whether capability c may be used right now.
type ReadinessChecker interface {
	Check(c engine.Capability) error
}

// ArtifactStore is the write side of the storage gateway.
type ArtifactStore interface {
	Put(ctx context.Context, req storage.PutRequest) (*generation.StoredArtifact, error)
}

type GenerationLimits struct {
	MaxPromptLength int
	MaxImageBytes   int64
}

type GenerationService interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

type generationService struct {
	log     *logger.Logger
	gate    ReadinessChecker
	engine  engine.Engine
	slots   *CapabilitySlots
	store   ArtifactStore
	limits  GenerationLimits
	metrics *observability.Metrics
	now     func() time.Time
}

func NewGenerationService(
	baseLog *logger.Logger,
	gate ReadinessChecker,
	eng engine.Engine,
	slots *CapabilitySlots,
	store ArtifactStore,
	limits GenerationLimits,
	metrics *observability.Metrics,
) GenerationService {
	if slots == nil {
		slots = NewCapabilitySlots(SlotPolicyWait, metrics)
	}
	return &generationService{
		log:     baseLog.With("service", "GenerationService"),
		gate:    gate,
		engine:  eng,
		slots:   slots,
		store:   store,
		limits:  limits,
		metrics: metrics,
		now:     time.Now,
	}
}

// Generate validates req, samples a point cloud, optionally reconstructs a mesh, encodes it as
// PLY and stores it. Validation and readiness failures happen before any engine call.
func (gs *generationService) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	start := time.Now()
	res, err := gs.generate(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = string(apierr.KindOf(err))
		gs.log.Error("Generation failed",
			"owner_id", req.CallerIdentity,
			"source", req.Source,
			"format", req.Format,
			"request_id", ctxutil.RequestID(ctx),
			"at", gs.now().UTC().Format(time.RFC3339),
			"error", err,
		)
	}
	gs.metrics.ObserveGeneration(string(req.Source), string(req.Format), outcome, time.Since(start))
	return res, err
}

func (gs *generationService) generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if err := gs.validate(&req); err != nil {
		return nil, err
	}

	sampleCap := engine.CapabilityText
	if req.Source == generation.SourceImage {
		sampleCap = engine.CapabilityImage
	}
	if err := gs.gate.Check(sampleCap); err != nil {
		return nil, err
	}
	if req.Format == generation.KindMesh {
		if err := gs.gate.Check(engine.CapabilityMesh); err != nil {
			return nil, err
		}
	}

	ctx, span := observability.StartSpan(ctx, "generation.Generate",
		attribute.String("generation.source", string(req.Source)),
		attribute.String("generation.format", string(req.Format)),
		attribute.Int("generation.grid_size", req.Resolution),
	)
	defer span.End()

	pc, err := gs.sample(ctx, sampleCap, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// Once inference has run, the artifact is finished and stored even if the client went away.
	ctx = context.WithoutCancel(ctx)

	var (
		data   []byte
		result = &generation.Result{OwnerID: req.CallerIdentity, Source: req.Source, Kind: req.Format}
	)
	switch req.Format {
	case generation.KindMesh:
		mesh, err := gs.reconstruct(ctx, pc, req.Resolution)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if data, err = ply.MarshalMesh(mesh); err != nil {
			return nil, apierr.Internal(fmt.Errorf("encode mesh: %w", err))
		}
		result.Vertices = len(mesh.Verts)
		result.Faces = len(mesh.Faces)
	default:
		if data, err = ply.MarshalPointCloud(pc); err != nil {
			return nil, apierr.Internal(fmt.Errorf("encode point cloud: %w", err))
		}
		result.Points = pc.Len()
	}

	filename := artifactFilename(req, gs.now())
	art, err := gs.store.Put(ctx, storage.PutRequest{
		OwnerID:     req.CallerIdentity,
		Filename:    filename,
		Kind:        req.Format,
		ContentType: ply.ContentType,
		Data:        data,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Artifact = *art
	result.Message = successMessage(req, art)

	gs.log.Info("Generation stored",
		"owner_id", req.CallerIdentity,
		"source", req.Source,
		"format", req.Format,
		"filename", art.Filename,
		"tier", art.Tier,
		"fallback", art.FallbackUsed,
		"size_bytes", art.SizeBytes,
	)
	return result, nil
}

func (gs *generationService) validate(req *generation.Request) error {
	switch req.Source {
	case generation.SourceText:
		if req.Prompt == "" {
			return apierr.Invalidf("empty_prompt", "prompt must not be empty")
		}
		if gs.limits.MaxPromptLength > 0 && req.PayloadSize() > gs.limits.MaxPromptLength {
			return apierr.Invalidf("prompt_too_long", "prompt exceeds %d characters", gs.limits.MaxPromptLength)
		}
	case generation.SourceImage:
		if len(req.Image) == 0 {
			return apierr.Invalidf("empty_image", "image must not be empty")
		}
		if gs.limits.MaxImageBytes > 0 && int64(len(req.Image)) > gs.limits.MaxImageBytes {
			return apierr.Invalidf("image_too_large", "image exceeds %d bytes", gs.limits.MaxImageBytes)
		}
	default:
		return apierr.Invalidf("invalid_source", "unsupported source %q", req.Source)
	}

	if req.Format == "" {
		req.Format = generation.KindMesh
	}
	if req.Format != generation.KindMesh && req.Format != generation.KindPointCloud {
		return apierr.Invalidf("invalid_format", "unsupported format %q", req.Format)
	}
	if req.Resolution < generation.MinResolution || req.Resolution > generation.MaxResolution {
		return apierr.Invalidf("invalid_grid_size", "grid_size must be between %d and %d", generation.MinResolution, generation.MaxResolution)
	}
	if req.NumSamples == 0 {
		req.NumSamples = 1
	}
	if req.NumSamples != 1 {
		return apierr.Invalidf("invalid_num_samples", "num_samples must be 1")
	}
	if err := auth.ValidateIdentity(req.CallerIdentity); err != nil {
		return apierr.InvalidRequest("invalid_user_id", err)
	}
	return nil
}

// sample holds the sampling capability slot for the duration of the engine call. The call itself
// runs detached from ctx so a client disconnect cannot interrupt the engine mid-call.
func (gs *generationService) sample(ctx context.Context, c engine.Capability, req generation.Request) (*geometry.PointCloud, error) {
	release, err := gs.slots.Acquire(ctx, c)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, span := observability.StartSpan(context.WithoutCancel(ctx), "engine.Sample", attribute.String("engine.capability", string(c)))
	defer span.End()

	start := time.Now()
	opts := engine.SampleOptions{NumSamples: req.NumSamples}
	var pc *geometry.PointCloud
	if c == engine.CapabilityImage {
		pc, err = gs.engine.SampleImage(callCtx, req.Image, req.ImageContentType, opts)
	} else {
		pc, err = gs.engine.SampleText(callCtx, req.Prompt, opts)
	}
	gs.metrics.ObserveEngineCall(string(c), err, time.Since(start))
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("sample %s: %w", c, err))
	}
	if pc == nil {
		return nil, apierr.Internal(errors.New("engine returned no point cloud"))
	}
	if err := pc.Validate(); err != nil {
		return nil, apierr.Internal(fmt.Errorf("engine point cloud: %w", err))
	}
	return pc, nil
}

func (gs *generationService) reconstruct(ctx context.Context, pc *geometry.PointCloud, gridSize int) (*geometry.Mesh, error) {
	release, err := gs.slots.Acquire(ctx, engine.CapabilityMesh)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, span := observability.StartSpan(context.WithoutCancel(ctx), "engine.ReconstructMesh", attribute.Int("engine.grid_size", gridSize))
	defer span.End()

	start := time.Now()
	mesh, err := gs.engine.ReconstructMesh(callCtx, pc, gridSize)
	gs.metrics.ObserveEngineCall(string(engine.CapabilityMesh), err, time.Since(start))
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("reconstruct mesh: %w", err))
	}
	if mesh == nil {
		return nil, apierr.Internal(errors.New("engine returned no mesh"))
	}
	if err := mesh.Validate(); err != nil {
		return nil, apierr.Internal(fmt.Errorf("engine mesh: %w", err))
	}
	return mesh, nil
}

func successMessage(req generation.Request, art *generation.StoredArtifact) string {
	what := "3D mesh"
	if req.Format == generation.KindPointCloud {
		what = "Point cloud"
	}
	msg := fmt.Sprintf("%s generated from %s and saved to %s storage", what, req.Source, tierLabel(art.Tier))
	if art.FallbackUsed {
		msg += " (remote storage failed; saved locally instead)"
	}
	return msg
}

func tierLabel(t generation.Tier) string {
	if t == generation.TierRemote {
		return "cloud"
	}
	return "local"
}
