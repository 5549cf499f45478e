package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/any-hub/imghub/internal/config"
	"github.com/any-hub/imghub/internal/imaging"
	"github.com/any-hub/imghub/internal/metrics"
	"github.com/any-hub/imghub/internal/server"
)

func TestEncodeCollectionsSortsByName(t *testing.T) {
	routes := []server.CollectionRoute{
		{Name: "Screenshots", URLPath: "/Screenshots"},
		{Name: "Logos", URLPath: "/Logos"},
	}

	encoded := encodeCollections(routes)
	if len(encoded) != 2 {
		t.Fatalf("expected 2 collections, got %d", len(encoded))
	}
	if encoded[0].Name != "Logos" || encoded[1].Name != "Screenshots" {
		t.Fatalf("expected sorted collections, got %+v", encoded)
	}
	if encodeCollections(nil) != nil {
		t.Fatalf("expected nil payload for empty registry")
	}
}

func TestEncodeFormatsListsRegisteredCodecs(t *testing.T) {
	encoded := encodeFormats(imaging.Formats())
	seen := make(map[string]formatPayload, len(encoded))
	for _, item := range encoded {
		seen[item.Format] = item
	}
	jpg, ok := seen["jpg"]
	if !ok || jpg.ContentType != "image/jpeg" || !jpg.Lossy {
		t.Fatalf("unexpected jpg payload %+v", jpg)
	}
	if png, ok := seen["png"]; !ok || png.Lossy {
		t.Fatalf("unexpected png payload %+v", png)
	}
}

func TestCollectionsEndpoint(t *testing.T) {
	app := fiber.New()
	RegisterDiagnostics(app, newRegistry(t), nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/collections", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload struct {
		Collections []collectionPayload `json:"collections"`
		Formats     []formatPayload     `json:"formats"`
		PassThrough string              `json:"pass_through"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Collections) != 2 || payload.Collections[0].URLPath != "/img/Logos" {
		t.Fatalf("unexpected collections %+v", payload.Collections)
	}
	if payload.PassThrough != "png" {
		t.Fatalf("unexpected pass-through format %s", payload.PassThrough)
	}
	if len(payload.Formats) == 0 {
		t.Fatalf("expected formats to be listed")
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("metrics should be disabled without a gatherer, got %d", resp.StatusCode)
	}
}

func TestCollectionDetailEndpoint(t *testing.T) {
	app := fiber.New()
	RegisterDiagnostics(app, newRegistry(t), nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/collections/Logos", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var payload collectionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Name != "Logos" || payload.URLPath != "/img/Logos" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/collections/logos", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("lookup should be case sensitive, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(reg)
	recorder.ObserveLookup("Logos", "jpg", metrics.OutcomeHit)

	app := fiber.New()
	RegisterDiagnostics(app, newRegistry(t), reg)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", resp.StatusCode, string(body))
	}
	if !strings.Contains(string(body), `collection="Logos"`) {
		t.Fatalf("expected lookup series in metrics output:\n%s", string(body))
	}
}

func newRegistry(t *testing.T) *server.CollectionRegistry {
	t.Helper()
	registry, err := server.NewCollectionRegistry(&config.Config{
		Global: config.GlobalConfig{
			ImagesPath: "/srv/images",
			CachePath:  "/srv/cache",
			URLPrefix:  "/img",
		},
		Collections: []string{"Screenshots", "Logos"},
	})
	if err != nil {
		t.Fatalf("registry error: %v", err)
	}
	return registry
}
