package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"rain-platform/internal/artifacts"
	"rain-platform/internal/classifier"
	"rain-platform/internal/config"
	"rain-platform/internal/etl"
	"rain-platform/internal/extraction"
	"rain-platform/internal/features"
	"rain-platform/internal/models"
	"rain-platform/internal/repository"
	"rain-platform/internal/split"
	"rain-platform/internal/validation"
	"rain-platform/pkg/logging"
	"rain-platform/pkg/metrics"
)

// Pipeline stage names, in execution order
const (
	StageExtract          = "extract"
	StageFlatten          = "flatten"
	StageLoad             = "load"
	StageIngest           = "ingest"
	StageValidate         = "validate"
	StageExtractFeatures  = "extract_features"
	StageTransform        = "transform"
	StageValidateFeatures = "validate_features"
	StageSplit            = "split"
	StageExport           = "export"
	StageTrain            = "train"
	StageEvaluate         = "evaluate"
	StagePersist          = "persist"
)

// Validation gate names
const (
	GateRaw      = "raw"
	GateFeatures = "features"
)

// HourlyFetcher retrieves the hourly archive for one window
type HourlyFetcher interface {
	FetchHourly(ctx context.Context, req extraction.Request) (*models.HourlyFrame, error)
}

// StageError reports the stage a run stopped at. It unwraps to the typed fault.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// RunOptions tune a single pipeline run
type RunOptions struct {
	// OfflineFile is an archive JSON dump read instead of calling the API.
	// Database stages are skipped in offline mode.
	OfflineFile string
	BatchSize   int
}

// PipelineResult is what a run produced. Run is always set; the rest only up
// to the stage that failed.
type PipelineResult struct {
	Run        *models.PipelineRun
	Report     *validation.Report
	Evaluation *classifier.Evaluation
	Bundle     *artifacts.Bundle
}

// PipelineService drives extract -> flatten -> load -> ingest -> validate ->
// features -> transform -> split -> export -> train -> evaluate -> persist
type PipelineService struct {
	cfg         *config.Config
	fetcher     HourlyFetcher
	repo        repository.WeatherRepository
	loader      *LoadingService
	store       *artifacts.Store
	validator   *validation.Validator
	transformer *features.Transformer
	trainer     *TrainingService
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
	now         func() time.Time
}

// NewPipelineService wires a pipeline. repo may be nil, in which case the
// database stages and run bookkeeping are skipped.
func NewPipelineService(
	cfg *config.Config,
	fetcher HourlyFetcher,
	repo repository.WeatherRepository,
	store *artifacts.Store,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) (*PipelineService, error) {
	transformer, err := features.NewTransformer(features.DefaultRecipe())
	if err != nil {
		return nil, err
	}

	s := &PipelineService{
		cfg:         cfg,
		fetcher:     fetcher,
		repo:        repo,
		store:       store,
		validator:   validation.NewValidator(cfg.Validation.StatusFile, logger),
		transformer: transformer,
		trainer: NewTrainingService(classifier.TrainingParams{
			LearningRate: cfg.Training.LearningRate,
			Epochs:       cfg.Training.Epochs,
			L2:           cfg.Training.L2,
			Threshold:    cfg.Training.Threshold,
		}, logger, metricsCollector),
		logger:  logger,
		metrics: metricsCollector,
		now:     time.Now,
	}
	if repo != nil {
		s.loader = NewLoadingService(repo, logger, metricsCollector)
	}
	return s, nil
}

// Run executes every stage in order and stops at the first failure
func (s *PipelineService) Run(ctx context.Context, opts RunOptions) (*PipelineResult, error) {
	offline := opts.OfflineFile != ""
	useDB := s.repo != nil && !offline
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.Database.BatchSize
	}

	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Status:    models.RunStatusRunning,
		Source:    "archive",
		StartedAt: s.now().UTC(),
	}
	if offline {
		run.Source = "offline:" + opts.OfflineFile
	}
	result := &PipelineResult{Run: run}
	ctx = logging.WithRunID(ctx, run.ID)

	s.logger.Info(ctx, "[PIPELINE_START] Pipeline run started", logging.Fields{
		"source":     run.Source,
		"database":   useDB,
		"batch_size": batchSize,
	})

	if useDB {
		if err := s.repo.CreateRun(ctx, run); err != nil {
			return result, fmt.Errorf("failed to record run: %w", err)
		}
	}

	err := s.runStages(ctx, run, result, opts, useDB, batchSize)

	finished := s.now().UTC()
	run.FinishedAt = &finished
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
	} else {
		run.Status = models.RunStatusSucceeded
	}
	s.metrics.PipelineRuns.WithLabelValues(run.Status).Inc()

	if useDB {
		if finishErr := s.repo.FinishRun(context.WithoutCancel(ctx), run); finishErr != nil {
			s.logger.Error(ctx, "[PIPELINE_RUN_RECORD_ERROR] Failed to record run outcome", logging.Fields{
				"status": run.Status,
			}, finishErr)
		}
	}

	if err != nil {
		s.logger.Error(ctx, "[PIPELINE_FAILED] Pipeline run failed", logging.Fields{
			"failed_stage": run.FailedStage,
			"fault":        models.FaultKind(err),
		}, err)
		return result, err
	}

	s.logger.Info(ctx, "[PIPELINE_COMPLETE] Pipeline run finished", logging.Fields{
		"hourly_rows":      run.HourlyRows,
		"daily_rows":       run.DailyRows,
		"train_rows":       run.TrainRows,
		"test_rows":        run.TestRows,
		"duration_seconds": finished.Sub(run.StartedAt).Seconds(),
	})
	return result, nil
}

func (s *PipelineService) runStages(ctx context.Context, run *models.PipelineRun, result *PipelineResult, opts RunOptions, useDB bool, batchSize int) error {
	var (
		hourly      *models.HourlyFrame
		flat        *models.FlatTable
		aggregates  *models.FeatureTable
		transformed *models.FeatureTable
		params      *features.ScalerParams
		parts       *split.Result
		model       *classifier.Model
	)

	stages := []struct {
		name string
		skip bool
		fn   func(ctx context.Context) (int, error)
	}{
		{StageExtract, false, func(ctx context.Context) (int, error) {
			var err error
			hourly, err = s.extract(ctx, opts.OfflineFile)
			if err != nil {
				return 0, err
			}
			run.HourlyRows = len(hourly.Records)
			return run.HourlyRows, nil
		}},
		{StageFlatten, false, func(ctx context.Context) (int, error) {
			var err error
			flat, err = etl.FlattenDaily(hourly)
			if err != nil {
				return 0, err
			}
			run.DailyRows = len(flat.Rows)
			return run.DailyRows, nil
		}},
		{StageLoad, !useDB, func(ctx context.Context) (int, error) {
			res, err := s.loader.Load(ctx, flat, batchSize)
			if err != nil {
				return 0, err
			}
			return res.InsertedRows, nil
		}},
		{StageIngest, !useDB, func(ctx context.Context) (int, error) {
			var err error
			flat, err = s.loader.Ingest(ctx)
			if err != nil {
				return 0, err
			}
			run.DailyRows = len(flat.Rows)
			return run.DailyRows, nil
		}},
		{StageValidate, false, func(ctx context.Context) (int, error) {
			expected, err := s.rawSchema()
			if err != nil {
				return 0, err
			}
			result.Report, err = s.validator.Validate(ctx, GateRaw, expected, flat.Columns())
			if err != nil {
				return 0, err
			}
			return len(flat.Rows), nil
		}},
		{StageExtractFeatures, false, func(ctx context.Context) (int, error) {
			var err error
			aggregates, err = features.Extract(flat)
			if err != nil {
				return 0, err
			}
			return aggregates.Len(), nil
		}},
		{StageTransform, false, func(ctx context.Context) (int, error) {
			var err error
			transformed, params, err = s.transformer.Fit(aggregates)
			if err != nil {
				return 0, err
			}
			return transformed.Len(), nil
		}},
		{StageValidateFeatures, false, func(ctx context.Context) (int, error) {
			expected := validation.FeatureSchema().Names()
			if err := s.validator.CheckOrder(ctx, GateFeatures, expected, transformed.LabeledSchema()); err != nil {
				return 0, err
			}
			return transformed.Len(), nil
		}},
		{StageSplit, false, func(ctx context.Context) (int, error) {
			var err error
			parts, err = split.TrainTestSplit(transformed, s.cfg.Split.TestSize, s.cfg.Split.RandomSeed)
			if err != nil {
				return 0, err
			}
			run.TrainRows = parts.Train.Len()
			run.TestRows = parts.Test.Len()
			return transformed.Len(), nil
		}},
		{StageExport, false, func(ctx context.Context) (int, error) {
			if err := s.store.ExportSplit(ctx, "train", parts.Train); err != nil {
				return 0, err
			}
			if err := s.store.ExportSplit(ctx, "test", parts.Test); err != nil {
				return 0, err
			}
			return parts.Train.Len() + parts.Test.Len(), nil
		}},
		{StageTrain, false, func(ctx context.Context) (int, error) {
			var err error
			model, err = s.trainer.Train(ctx, parts.Train)
			if err != nil {
				return 0, err
			}
			model.RecipeVersion = params.RecipeVersion
			model.RunID = run.ID
			return parts.Train.Len(), nil
		}},
		{StageEvaluate, false, func(ctx context.Context) (int, error) {
			var err error
			result.Evaluation, err = s.trainer.Evaluate(ctx, model, parts.Test)
			if err != nil {
				return 0, err
			}
			return parts.Test.Len(), nil
		}},
		{StagePersist, false, func(ctx context.Context) (int, error) {
			bundle := &artifacts.Bundle{
				FeatureNames: transformed.Columns.Clone(),
				Scaler:       params,
				Model:        model,
				Metrics:      result.Evaluation,
			}
			if err := s.store.SaveBundle(ctx, bundle); err != nil {
				return 0, err
			}
			result.Bundle = bundle
			return 1, nil
		}},
	}

	for _, st := range stages {
		if st.skip {
			s.logger.Debug(ctx, "[STAGE_SKIPPED] Stage skipped", logging.Fields{"stage": st.name})
			continue
		}
		if err := s.stage(ctx, run, st.name, st.fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *PipelineService) stage(ctx context.Context, run *models.PipelineRun, name string, fn func(ctx context.Context) (int, error)) error {
	ctx = logging.WithStage(ctx, name)
	s.logger.Info(ctx, "[STAGE_START] Stage started", logging.Fields{"stage": name})

	if err := ctx.Err(); err != nil {
		run.FailedStage = name
		return &StageError{Stage: name, Err: err}
	}

	timer := s.metrics.StageTimer(name)
	rows, err := fn(ctx)
	duration := timer.ObserveDuration()

	if err != nil {
		fault := models.FaultKind(err)
		s.metrics.RecordStageFailure(name, fault)
		s.logger.Error(ctx, "[STAGE_FAILED] Stage failed", logging.Fields{
			"stage":       name,
			"fault":       fault,
			"duration_ms": duration.Milliseconds(),
		}, err)
		run.FailedStage = name
		return &StageError{Stage: name, Err: err}
	}

	s.metrics.RecordRows(name, rows)
	s.logger.Info(ctx, "[STAGE_COMPLETE] Stage completed", logging.Fields{
		"stage":       name,
		"rows":        rows,
		"duration_ms": duration.Milliseconds(),
	})
	return nil
}

func (s *PipelineService) extract(ctx context.Context, offlineFile string) (*models.HourlyFrame, error) {
	if offlineFile != "" {
		f, err := os.Open(offlineFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open offline archive: %w", err)
		}
		defer f.Close()
		return extraction.DecodeArchive(f, models.HourlyVariables)
	}

	if s.fetcher == nil {
		return nil, &models.ConfigurationError{Parameter: "extraction", Message: "no archive client and no offline file"}
	}

	start, end := extraction.Window(civil.DateOf(s.now()), s.cfg.Extraction.StartOffsetDays, s.cfg.Extraction.EndOffsetDays)
	return s.fetcher.FetchHourly(ctx, extraction.Request{
		Latitude:  s.cfg.Extraction.Latitude,
		Longitude: s.cfg.Extraction.Longitude,
		Start:     start,
		End:       end,
		Variables: models.HourlyVariables,
	})
}

func (s *PipelineService) rawSchema() (validation.Schema, error) {
	if s.cfg.Validation.SchemaFile == "" {
		return validation.FlatSchema(models.HourlyVariables), nil
	}
	return validation.LoadSchema(s.cfg.Validation.SchemaFile)
}
