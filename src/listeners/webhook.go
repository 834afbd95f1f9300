package listeners

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"iot-tier-pipeline/src/trigger"
	"iot-tier-pipeline/src/types"
)

// PayloadHandler consumes one raw S3 event notification document.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) (types.BatchResult, error)
}

// Webhook receives MinIO webhook notifications.
type Webhook struct {
	Handler PayloadHandler
}

func NewWebhook(h PayloadHandler) *Webhook {
	return &Webhook{Handler: h}
}

func (w *Webhook) Register(r gin.IRoutes) {
	r.POST("/minio/events", w.Receive)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func (w *Webhook) Receive(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	batch, err := w.Handler.HandlePayload(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, trigger.ErrUnknownEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, batch)
}

func NewRouter(h PayloadHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	NewWebhook(h).Register(r)
	return r
}

// ServeWebhook listens on addr until ctx is cancelled.
func ServeWebhook(ctx context.Context, addr string, h PayloadHandler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Webhook listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Println("Webhook shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
