package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/turtacn/linkguard/internal/application/dto"
	"github.com/turtacn/linkguard/internal/interfaces/http/middleware"
	"github.com/turtacn/linkguard/pkg/constants"
	apperrors "github.com/turtacn/linkguard/pkg/errors"
	"github.com/turtacn/linkguard/pkg/logger"
)

var errUpstreamUnavailable = apperrors.NewError(apperrors.CodeServiceUnavailable, http.StatusBadGateway,
	"The upstream service is unavailable.", "")

// UpstreamProxy forwards admitted requests to the URL shortener service.
type UpstreamProxy struct {
	proxy *httputil.ReverseProxy
	log   logger.Logger
}

// NewUpstreamProxy creates a proxy to target. timeout bounds each upstream round trip.
func NewUpstreamProxy(target *url.URL, timeout time.Duration, log logger.Logger) *UpstreamProxy {
	log = log.WithComponent("upstream_proxy")
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	proxy := &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Header.Del(constants.HeaderUserID)
			if userID, ok := r.In.Context().Value(constants.ContextKeyUserID).(string); ok && userID != "" {
				r.Out.Header.Set(constants.HeaderUserID, userID)
			}
			otel.GetTextMapPropagator().Inject(r.In.Context(), propagation.HeaderCarrier(r.Out.Header))
		},
		Transport: transport,
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error(r.Context(), "Upstream request failed", err, logger.String("path", r.URL.Path))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(dto.ErrorResponse(errUpstreamUnavailable, w.Header().Get(constants.HeaderRequestID)))
	}
	return &UpstreamProxy{proxy: proxy, log: log}
}

// Forward proxies the request. The authenticated user, if any, is passed as X-User-ID;
// a client-supplied X-User-ID is always discarded.
func (p *UpstreamProxy) Forward(c *gin.Context) {
	req := c.Request
	if userID := middleware.UserID(c); userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), constants.ContextKeyUserID, userID))
	}
	p.proxy.ServeHTTP(c.Writer, req)
}

// Unavailable answers 502 when no upstream is configured.
func Unavailable(c *gin.Context) {
	dto.SendError(c, errUpstreamUnavailable)
}
