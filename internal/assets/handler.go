package assets

import (
	"context"
	"crypto/subtle"
	"errors"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/any-hub/imghub/internal/cache"
	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/logging"
	"github.com/any-hub/imghub/internal/pathguard"
	"github.com/any-hub/imghub/internal/server"
)

// 响应正文保持纯文本且不携带内部细节。
const (
	msgNotFound        = "Not Found"
	msgProcessing      = "Error processing image"
	msgOpenFailed      = "Failed processing image"
	msgUnauthorized    = "Unauthorized"
	msgBadRequest      = "Bad Request"
	msgDeleteFailed    = "Failed deleting image"
	msgDeleted         = "OK"
	headerCacheHit     = "X-Imghub-Cache-Hit"
	headerRequestID    = "X-Request-ID"
	bearerPrefix       = "Bearer "
	queryParamFormat   = "type"
	paramFirstSegment  = "seg1"
	paramSecondSegment = "seg2"
	paramFilename      = "filename"
)

// ErrUnauthorized 表示删除请求缺少或携带了错误的 bearer token。
var ErrUnauthorized = errors.New("unauthorized")

// Options 描述 Handler 的依赖。
type Options struct {
	Derivatives *cache.Derivatives
	// FS 用于打开待输出的文件，应与 Derivatives 使用同一个文件系统。
	FS     afero.Fs
	Logger *logrus.Logger
	// DeleteToken 为空时删除接口对所有请求返回 401。
	DeleteToken string
}

// Handler 处理单个集合下的资产读取与删除请求。
type Handler struct {
	derivatives *cache.Derivatives
	fs          afero.Fs
	logger      *logrus.Logger
	deleteToken string
}

var _ server.AssetHandler = (*Handler)(nil)

// NewHandler constructs an asset handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Derivatives == nil {
		return nil, errors.New("derivative cache is required")
	}
	if opts.FS == nil {
		return nil, errors.New("filesystem is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Handler{
		derivatives: opts.Derivatives,
		fs:          opts.FS,
		logger:      opts.Logger,
		deleteToken: strings.TrimSpace(opts.DeleteToken),
	}, nil
}

// Serve 解析目标格式、定位源文件并输出派生（或原始）文件。
func (h *Handler) Serve(c fiber.Ctx, route *server.CollectionRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	rel := requestRelPath(c)

	format, err := imaging.ParseFormat(c.Query(queryParamFormat))
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"action":     "asset_read",
			"collection": route.Name,
			"path":       rel,
			"request_id": requestID,
		}).WithError(err).Debug("invalid_image_type")
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}

	if _, err := pathguard.Resolve(route.SourceRoot, segments(c)...); err != nil {
		h.logViolation("asset_read", route, rel, requestID)
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	}

	source := imaging.SwapExt(rel, imaging.PassThrough)
	result, err := h.derivatives.GetOrCreate(requestContext(c), route.Cache(), source, format)
	if err != nil {
		return h.writeLookupError(c, route, rel, format, requestID, err)
	}

	file, err := h.fs.Open(result.Path)
	if err != nil {
		return h.writeOpenError(c, route, rel, format, requestID, err)
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		file.Close()
		if err == nil {
			err = fs.ErrNotExist
		}
		return h.writeOpenError(c, route, rel, format, requestID, err)
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(headerCacheHit, strconv.FormatBool(result.CacheHit))
	if requestID != "" {
		c.Set(headerRequestID, requestID)
	}

	h.logResult(route, rel, format, requestID, fiber.StatusOK, result.CacheHit, started)
	return c.Status(fiber.StatusOK).SendStream(file, int(info.Size()))
}

// Delete 删除默认有损格式的派生文件；源目录不会被触碰。
func (h *Handler) Delete(c fiber.Ctx, route *server.CollectionRoute) error {
	requestID := server.RequestID(c)
	rel := requestRelPath(c)
	fields := logrus.Fields{
		"action":     "asset_delete",
		"collection": route.Name,
		"path":       rel,
		"request_id": requestID,
	}

	if err := h.authorize(c.Get(fiber.HeaderAuthorization)); err != nil {
		h.logger.WithFields(fields).Info("delete_unauthorized")
		return c.Status(fiber.StatusUnauthorized).SendString(msgUnauthorized)
	}

	if _, err := pathguard.Resolve(route.CacheRoot, segments(c)...); err != nil {
		h.logViolation("asset_delete", route, rel, requestID)
		return c.Status(fiber.StatusBadRequest).SendString(msgBadRequest)
	}

	locator := cache.DerivativeLocator(route.Name, rel, imaging.DefaultLossy)
	if err := h.derivatives.Store().Remove(requestContext(c), locator); err != nil {
		if errors.Is(err, pathguard.ErrPathViolation) {
			h.logViolation("asset_delete", route, rel, requestID)
			return c.Status(fiber.StatusBadRequest).SendString(msgBadRequest)
		}
		h.logger.WithFields(fields).WithError(err).Error("delete_failed")
		return c.Status(fiber.StatusInternalServerError).SendString(msgDeleteFailed)
	}

	fields["target"] = locator.Path
	h.logger.WithFields(fields).Info("derivative_deleted")
	return c.Status(fiber.StatusOK).SendString(msgDeleted)
}

func (h *Handler) authorize(header string) error {
	if h.deleteToken == "" || !strings.HasPrefix(header, bearerPrefix) {
		return ErrUnauthorized
	}
	given := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.deleteToken)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (h *Handler) writeLookupError(
	c fiber.Ctx,
	route *server.CollectionRoute,
	rel string,
	format imaging.Format,
	requestID string,
	err error,
) error {
	fields := logging.RequestFields(route.Name, rel, string(format), false)
	fields["action"] = "asset_read"
	fields["request_id"] = requestID

	var procErr *cache.ProcessingError
	switch {
	case errors.Is(err, pathguard.ErrPathViolation):
		h.logViolation("asset_read", route, rel, requestID)
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	case errors.Is(err, cache.ErrNotFound):
		h.logger.WithFields(fields).WithError(err).Debug("asset_not_found")
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	case errors.As(err, &procErr):
		fields["op"] = procErr.Op
		h.logger.WithFields(fields).WithError(err).Error("asset_processing_failed")
		return c.Status(fiber.StatusInternalServerError).SendString(msgProcessing)
	default:
		h.logger.WithFields(fields).WithError(err).Error("asset_lookup_failed")
		return c.Status(fiber.StatusInternalServerError).SendString(msgProcessing)
	}
}

func (h *Handler) writeOpenError(
	c fiber.Ctx,
	route *server.CollectionRoute,
	rel string,
	format imaging.Format,
	requestID string,
	err error,
) error {
	fields := logging.RequestFields(route.Name, rel, string(format), false)
	fields["action"] = "asset_read"
	fields["request_id"] = requestID

	if errors.Is(err, fs.ErrNotExist) {
		h.logger.WithFields(fields).Debug("asset_not_found")
		return c.Status(fiber.StatusNotFound).SendString(msgNotFound)
	}
	h.logger.WithFields(fields).WithError(err).Error("asset_open_failed")
	return c.Status(fiber.StatusInternalServerError).SendString(msgOpenFailed)
}

func (h *Handler) logViolation(action string, route *server.CollectionRoute, rel, requestID string) {
	fields := logging.SecurityFields(action, route.Name, rel)
	fields["request_id"] = requestID
	h.logger.WithFields(fields).Warn("path_violation")
}

func (h *Handler) logResult(
	route *server.CollectionRoute,
	rel string,
	format imaging.Format,
	requestID string,
	status int,
	cacheHit bool,
	started time.Time,
) {
	fields := logging.RequestFields(route.Name, rel, string(format), cacheHit)
	fields["action"] = "asset_read"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	h.logger.WithFields(fields).Info("asset_complete")
}

func segments(c fiber.Ctx) []string {
	return []string{
		c.Params(paramFirstSegment),
		c.Params(paramSecondSegment),
		c.Params(paramFilename),
	}
}

// requestRelPath 返回集合内的相对请求路径，例如 a/b/logo.jpg。
func requestRelPath(c fiber.Ctx) string {
	return path.Join(segments(c)...)
}

func requestContext(c fiber.Ctx) context.Context {
	var ctx context.Context = c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
