package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/server"
)

// RegisterDiagnostics 暴露 /-/collections 与 /-/collections/:name 诊断接口；
// gatherer 非空时额外挂载 /-/metrics。
func RegisterDiagnostics(app *fiber.App, registry *server.CollectionRegistry, gatherer prometheus.Gatherer) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/collections", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"collections":  encodeCollections(registry.List()),
			"formats":      encodeFormats(imaging.Formats()),
			"pass_through": string(imaging.PassThrough),
		}
		return c.JSON(payload)
	})

	app.Get("/-/collections/:name", func(c fiber.Ctx) error {
		route, ok := registry.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "collection_not_found"})
		}
		return c.JSON(encodeCollection(*route))
	})

	if gatherer != nil {
		handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
		app.Get("/-/metrics", adaptor.HTTPHandler(handler))
	}
}

type collectionPayload struct {
	Name    string `json:"name"`
	URLPath string `json:"url_path"`
}

type formatPayload struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Lossy       bool   `json:"lossy"`
}

func encodeCollections(routes []server.CollectionRoute) []collectionPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Name < routes[j].Name
	})
	result := make([]collectionPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, encodeCollection(route))
	}
	return result
}

func encodeCollection(route server.CollectionRoute) collectionPayload {
	return collectionPayload{
		Name:    route.Name,
		URLPath: route.URLPath,
	}
}

func encodeFormats(formats []imaging.Format) []formatPayload {
	result := make([]formatPayload, 0, len(formats))
	for _, format := range formats {
		codec, ok := imaging.Lookup(format)
		if !ok {
			continue
		}
		result = append(result, formatPayload{
			Format:      string(codec.Format),
			ContentType: codec.MIME,
			Lossy:       codec.Lossy,
		})
	}
	return result
}
