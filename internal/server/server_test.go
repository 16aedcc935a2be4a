package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tarneaux/swec"
)

func newTestServer(t *testing.T, writable bool) (*httptest.Server, *swec.Engine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := swec.New(
		swec.WithDataDir(t.TempDir()),
		swec.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	srv := httptest.NewServer(New(engine, Config{
		Writable: writable,
		Version:  "test",
		Metrics:  engine.MetricsHandler(),
		Logger:   logger,
	}).Handler())
	t.Cleanup(srv.Close)
	return srv, engine
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest() error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error: %v", method, url, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body ErrorResponse
	decode(t, resp, &body)
	return body.Code
}

func TestServer_Info(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /info = %v, want 200", resp.StatusCode)
	}
	var info swec.Info
	decode(t, resp, &info)
	if !info.Writable || info.Version != "test" {
		t.Errorf("info = %+v, want writable test", info)
	}
}

func TestServer_SpecLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, true)
	base := srv.URL + "/api/v1/checkers/blog"

	spec := swec.Spec{Description: "my blog", URL: "https://blog.example.com", Group: "web"}
	resp := doJSON(t, http.MethodPost, base+"/spec", spec)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST spec = %v, want 201", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/spec", spec)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate POST spec = %v, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "conflict" {
		t.Errorf("error code = %q, want conflict", code)
	}

	resp = doJSON(t, http.MethodGet, base+"/spec", nil)
	var got swec.Spec
	decode(t, resp, &got)
	if got != spec {
		t.Errorf("GET spec = %+v, want %+v", got, spec)
	}

	updated := swec.Spec{Description: "renamed", Group: "web"}
	resp = doJSON(t, http.MethodPut, base+"/spec", updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT spec = %v, want 200", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, base, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE = %v, want 204", resp.StatusCode)
	}
	_ = resp.Body.Close()

	resp = doJSON(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete = %v, want 404", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "not_found" {
		t.Errorf("error code = %q, want not_found", code)
	}
}

func TestServer_InvalidSpecRejected(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/checkers/bad/spec", swec.Spec{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST invalid spec = %v, want 400", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "validation" {
		t.Errorf("error code = %q, want validation", code)
	}
}

func TestServer_Statuses(t *testing.T) {
	srv, engine := newTestServer(t, true)
	if err := engine.CreateSpec("a", swec.Spec{Description: "x"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	base := srv.URL + "/api/v1/checkers/a/statuses"

	resp := doJSON(t, http.MethodGet, base+"/latest", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET latest without statuses = %v, want 404", resp.StatusCode)
	}
	_ = resp.Body.Close()

	t1 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		st := swec.Status{Time: t1.Add(time.Duration(i) * time.Minute), Up: i != 1, Message: "probe"}
		resp := doJSON(t, http.MethodPost, base, st)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("POST status = %v, want 201", resp.StatusCode)
		}
		_ = resp.Body.Close()
	}

	// out of order entries are refused and change nothing
	resp = doJSON(t, http.MethodPost, base, swec.Status{Time: t1.Add(-time.Hour), Up: true})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("POST stale status = %v, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "out_of_order" {
		t.Errorf("error code = %q, want out_of_order", code)
	}

	resp = doJSON(t, http.MethodGet, base+"/latest", nil)
	var latest swec.Status
	decode(t, resp, &latest)
	if !latest.Up || !latest.Time.Equal(t1.Add(2*time.Minute)) {
		t.Errorf("latest = %+v, want the newest status", latest)
	}

	resp = doJSON(t, http.MethodGet, base+"?offset=1&limit=1", nil)
	var page HistoryPage
	decode(t, resp, &page)
	if page.Total != 3 || page.Offset != 1 || len(page.Statuses) != 1 {
		t.Fatalf("page = %+v, want total 3 offset 1 with one entry", page)
	}
	if page.Statuses[0].Up {
		t.Errorf("page entry = %+v, want the down status", page.Statuses[0])
	}

	resp = doJSON(t, http.MethodGet, base+"?offset=-1", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("GET with negative offset = %v, want 400", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestServer_List(t *testing.T) {
	srv, engine := newTestServer(t, false)
	if err := engine.CreateSpec("a", swec.Spec{Description: "x", Group: "one"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	if err := engine.CreateSpec("b", swec.Spec{Description: "y", Group: "two"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/checkers", nil)
	var all []swec.ListedChecker
	decode(t, resp, &all)
	if len(all) != 2 || all[0].Name != "a" {
		t.Errorf("list = %+v, want [a b]", all)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/checkers?group=two", nil)
	var filtered []swec.ListedChecker
	decode(t, resp, &filtered)
	if len(filtered) != 1 || filtered[0].Name != "b" {
		t.Errorf("filtered list = %+v, want [b]", filtered)
	}
}

func TestServer_ReadOnlyRejectsWrites(t *testing.T) {
	srv, engine := newTestServer(t, false)
	if err := engine.CreateSpec("a", swec.Spec{Description: "x"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/checkers/a/spec"},
		{http.MethodPut, "/api/v1/checkers/a/spec"},
		{http.MethodDelete, "/api/v1/checkers/a"},
		{http.MethodPost, "/api/v1/checkers/a/statuses"},
	}
	for _, tt := range tests {
		resp := doJSON(t, tt.method, srv.URL+tt.path, swec.Spec{Description: "x"})
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %v on read-only listener, want 405", tt.method, tt.path, resp.StatusCode)
		}
		_ = resp.Body.Close()
	}

	// reads still work
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/checkers/a", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET checker = %v on read-only listener, want 200", resp.StatusCode)
	}
	_ = resp.Body.Close()
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, true)

	resp := doJSON(t, http.MethodGet, srv.URL+"/metrics", nil)
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %v, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if !strings.Contains(string(body), "swec_") {
		t.Error("metrics output missing swec_ collectors")
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readEvent(t *testing.T, conn *websocket.Conn) swec.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev swec.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return ev
}

func TestServer_WatchChecker(t *testing.T) {
	srv, engine := newTestServer(t, true)
	if err := engine.CreateSpec("a", swec.Spec{Description: "x"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	if err := engine.AppendStatus("a", swec.Status{Up: true, Message: "200 OK"}); err != nil {
		t.Fatalf("AppendStatus() error: %v", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/checkers/a/watch"), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	initial := readEvent(t, conn)
	if initial.Kind != swec.KindInitial || initial.Status == nil || initial.Status.Message != "200 OK" {
		t.Fatalf("initial frame = %+v, want initial with latest status", initial)
	}

	if err := engine.AppendStatus("a", swec.Status{Up: false, Message: "503"}); err != nil {
		t.Fatalf("AppendStatus() error: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Kind != swec.KindStatusAppended || ev.Status.Message != "503" {
		t.Errorf("event = %+v, want the 503 append", ev)
	}
}

func TestServer_WatchCheckerUnknown(t *testing.T) {
	srv, _ := newTestServer(t, true)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/v1/checkers/ghost/watch"), nil)
	if err == nil {
		t.Fatal("Dial() to unknown checker succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v, want 404", resp)
	}
	_ = resp.Body.Close()
}

func TestServer_WatchAllResume(t *testing.T) {
	srv, engine := newTestServer(t, true)
	if err := engine.CreateSpec("a", swec.Spec{Description: "x"}); err != nil {
		t.Fatalf("CreateSpec() error: %v", err)
	}
	mark := engine.Seq()
	if err := engine.AppendStatus("a", swec.Status{Up: true, Message: "while away"}); err != nil {
		t.Fatalf("AppendStatus() error: %v", err)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(
		wsURL(srv, "/api/v1/watch?since="+strconv.FormatUint(mark, 10)), nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer func() { _ = conn.Close() }()
	_ = resp.Body.Close()

	ev := readEvent(t, conn)
	if ev.Seq != mark+1 || ev.Status == nil || ev.Status.Message != "while away" {
		t.Errorf("replayed event = %+v, want seq %v", ev, mark+1)
	}

	if err := engine.AppendStatus("a", swec.Status{Up: true, Message: "live"}); err != nil {
		t.Fatalf("AppendStatus() error: %v", err)
	}
	ev = readEvent(t, conn)
	if ev.Seq != mark+2 {
		t.Errorf("live event = %+v, want seq %v", ev, mark+2)
	}
}
