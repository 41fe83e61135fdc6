package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/auralis/api/internal/client"
	"github.com/auralis/api/internal/model"
	"github.com/auralis/api/internal/observe"
)

// StatusService reads job state from the generation service and normalizes
// it. It keeps nothing between polls; concurrent polls for the same job are
// collapsed into one upstream read.
type StatusService struct {
	generator client.MusicGenerator
	group     singleflight.Group
	metrics   *observe.Metrics
	log       logrus.FieldLogger
}

func NewStatusService(generator client.MusicGenerator, metrics *observe.Metrics, log logrus.FieldLogger) *StatusService {
	return &StatusService{
		generator: generator,
		metrics:   metrics,
		log:       log,
	}
}

// Poll returns the current status report for jobID. Failed and canceled jobs
// come back as reports, not errors; see ReportFailure.
func (s *StatusService) Poll(ctx context.Context, jobID string) (*model.StatusReport, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, &Error{Kind: KindInvalidInput, Message: MsgMissingJobID}
	}

	if !s.generator.IsConfigured() {
		return nil, &Error{Kind: KindServiceUnavailable, Message: MsgMissingToken}
	}

	// The shared read must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(jobID, func() (interface{}, error) {
		start := time.Now()
		pred, err := s.generator.GetPrediction(shared, jobID)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordUpstream(shared, "get", outcome, time.Since(start))
		return pred, err
	})
	if err != nil {
		s.log.WithError(err).WithField("prediction_id", jobID).Warn("status check failed")
		return nil, classifyStatusError(err)
	}

	report := BuildReport(jobID, v.(*client.Prediction))
	if !report.Status.IsKnown() {
		s.log.WithFields(logrus.Fields{
			"prediction_id": jobID,
			"status":        report.Status,
		}).Warn("unrecognized prediction status")
	}
	return report, nil
}

// BuildReport maps an upstream prediction onto a status report.
func BuildReport(jobID string, pred *client.Prediction) *model.StatusReport {
	state := model.LifecycleState(pred.Status)

	switch state {
	case model.StateStarting, model.StateProcessing:
		return &model.StatusReport{Status: state, PredictionID: jobID}

	case model.StateFailed:
		msg := pred.ErrorMessage()
		if msg == "" {
			msg = model.MsgGenerationFailed
		}
		return &model.StatusReport{Status: model.StateFailed, Error: msg}

	case model.StateCanceled:
		return &model.StatusReport{Status: model.StateCanceled, Error: model.MsgGenerationCanceled}

	case model.StateSucceeded:
		audioURL, ok := model.ExtractAudioURL(pred.Output)
		if !ok {
			return &model.StatusReport{Status: model.StateFailed, Error: model.MsgNoAudioURL}
		}
		links := model.NewProxyLinks(audioURL)
		return &model.StatusReport{
			Status:      model.StateSucceeded,
			AudioURL:    audioURL,
			StreamURL:   links.StreamURL,
			DownloadURL: links.DownloadURL,
		}
	}

	// Unrecognized states pass through so newer upstream states do not
	// break polling clients.
	return &model.StatusReport{Status: state, PredictionID: jobID}
}

func classifyStatusError(err error) error {
	if svcErr := protocolFailure(err); svcErr != nil {
		return svcErr
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Kind:    KindUpstream,
			Message: fmt.Sprintf("Status check failed (%d): %s", apiErr.StatusCode, upstreamText(apiErr)),
			Err:     err,
		}
	}
	return &Error{Kind: KindUpstream, Message: err.Error(), Err: err}
}
