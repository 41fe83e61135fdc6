package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/model"
	"github.com/auralis/api/internal/observe"
)

// GenerateService submits generation jobs. It only waits for the upstream to
// accept a job, never for the job to finish.
type GenerateService struct {
	generator    client.MusicGenerator
	validator    *validator.Validate
	modelVersion string
	metrics      *observe.Metrics
	log          logrus.FieldLogger
}

func NewGenerateService(generator client.MusicGenerator, v *validator.Validate, modelVersion string, metrics *observe.Metrics, log logrus.FieldLogger) *GenerateService {
	return &GenerateService{
		generator:    generator,
		validator:    v,
		modelVersion: modelVersion,
		metrics:      metrics,
		log:          log,
	}
}

// Submit validates req and creates the upstream job, returning its id.
func (s *GenerateService) Submit(ctx context.Context, req *model.GenerationRequest) (*model.GenerateResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		details := validationDetails(err)
		message := MsgMissingPrompt
		if _, promptFailed := details["Prompt"]; !promptFailed && len(details) > 0 {
			message = MsgInvalidRequest
		}
		svcErr := &Error{Kind: KindInvalidInput, Message: message, Err: err}
		if len(details) > 0 {
			svcErr.Details = details
		}
		return nil, svcErr
	}

	if !s.generator.IsConfigured() {
		return nil, &Error{Kind: KindServiceUnavailable, Message: MsgMissingToken}
	}

	body := &client.CreatePredictionRequest{
		Version: s.modelVersion,
		Input: client.PredictionInput{
			Prompt:                req.Prompt,
			Duration:              req.Duration,
			ModelVersion:          string(req.ModelVersion),
			OutputFormat:          model.OutputFormatMP3,
			NormalizationStrategy: model.NormalizationStrategyLoudness,
		},
	}

	start := time.Now()
	pred, err := s.generator.CreatePrediction(ctx, body)
	if err != nil {
		s.metrics.RecordUpstream(ctx, "create", "error", time.Since(start))
		return nil, s.classifyCreateError(err)
	}
	s.metrics.RecordUpstream(ctx, "create", "ok", time.Since(start))

	if pred.ID == "" {
		s.log.WithField("status", pred.Status).Error("prediction created without id")
		return nil, &Error{Kind: KindUpstreamProtocol, Message: MsgNoPredictionID}
	}

	status := model.LifecycleState(pred.Status)
	if status == "" {
		status = model.StateStarting
	}

	s.log.WithFields(logrus.Fields{
		"prediction_id": pred.ID,
		"duration":      req.Duration,
		"model_version": req.ModelVersion,
	}).Info("generation submitted")

	return &model.GenerateResponse{
		PredictionID: pred.ID,
		Status:       status,
	}, nil
}

func (s *GenerateService) classifyCreateError(err error) error {
	if svcErr := protocolFailure(err); svcErr != nil {
		s.log.WithError(err).Error("generation submit returned malformed body")
		return svcErr
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if isInsufficientCredit(apiErr) {
			s.log.WithError(err).Warn("replicate account out of credit")
			return &Error{Kind: KindPaymentRequired, Message: MsgOutOfCredit, Err: err}
		}
		s.log.WithError(err).Warn("generation submit rejected")
		return &Error{Kind: KindUpstream, Message: upstreamText(apiErr), Err: err}
	}

	s.log.WithError(err).Warn("generation submit failed")
	return &Error{Kind: KindUpstream, Message: err.Error(), Err: err}
}

func isInsufficientCredit(apiErr *client.APIError) bool {
	return apiErr.StatusCode == http.StatusPaymentRequired ||
		strings.Contains(strings.ToLower(apiErr.Body), "insufficient credit")
}

func upstreamText(apiErr *client.APIError) string {
	if body := strings.TrimSpace(apiErr.Body); body != "" {
		return body
	}
	if text := http.StatusText(apiErr.StatusCode); text != "" {
		return text
	}
	return msgUpstreamFallback
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string)
	for _, e := range validationErrors {
		details[e.Field()] = e.Tag()
	}
	return details
}
