package services

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/eddykim0118/kivo/internal/forecast"
	"github.com/eddykim0118/kivo/internal/forecast/mlclient"
	"github.com/eddykim0118/kivo/internal/platform/apierr"
	"github.com/eddykim0118/kivo/internal/platform/ctxutil"
	"github.com/eddykim0118/kivo/internal/platform/dbctx"
	"github.com/eddykim0118/kivo/internal/realtime"
)

// ObjectStore is the slice of gcp.BucketService the services need.
type ObjectStore interface {
	UploadFile(dbc dbctx.Context, key string, file io.Reader, contentType string) error
	DeleteFile(dbc dbctx.Context, key string) error
	ObjectURI(key string) string
}

// ForecastClient is the remote forecasting service.
type ForecastClient interface {
	Submit(ctx context.Context, req mlclient.SubmitRequest) (forecast.Job, error)
	Status(ctx context.Context, jobID string) (forecast.RemoteStatus, error)
	Result(ctx context.Context, jobID string) (forecast.ResultPayload, error)
	Cancel(ctx context.Context, jobID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev realtime.JobEvent) error
}

var errUnauthenticated = errors.New("request has no authenticated user")

func requestUser(ctx context.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID == "" {
		return nil, apierr.New(http.StatusUnauthorized, "unauthorized", errUnauthenticated)
	}
	return rd, nil
}
