package bilibili_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quickview/internal/services"
	"quickview/internal/services/bilibili"
)

func TestWatchLaterMapsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/v2/history/toview" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Cookie"); got != "SESSDATA=abc" {
			t.Errorf("unexpected cookie %q", got)
		}
		if r.Header.Get("Referer") != "https://www.bilibili.com" || r.Header.Get("User-Agent") == "" {
			t.Errorf("missing browser headers: %v", r.Header)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"count":2,"list":[
			{"bvid":"BV1xx411c7mD","title":"First","owner":{"name":"up1"},"duration":61,"pic":"http://i0/a.jpg"},
			{"bvid":"BV1yy411c7mE","title":"Second","owner":{"name":"up2"},"duration":3600,"pic":""}]}}`))
	}))
	defer server.Close()

	client := bilibili.NewClient(bilibili.Config{APIBaseURL: server.URL, SESSDATA: "abc"})
	defer client.Close()

	items, err := client.WatchLater(context.Background())
	if err != nil {
		t.Fatalf("WatchLater returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].BVID != "BV1xx411c7mD" || items[0].Owner != "up1" || items[0].DurationSeconds != 61 || items[0].Cover == "" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Title != "Second" {
		t.Fatalf("order not preserved: %+v", items)
	}
}

func TestWatchLaterInvalidSESSDATA(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":-101,"message":"账号未登录"}`))
	}))
	defer server.Close()

	client := bilibili.NewClient(bilibili.Config{APIBaseURL: server.URL, SESSDATA: "expired"})
	defer client.Close()

	_, err := client.WatchLater(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	var apiErr *bilibili.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != -101 {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}

func TestWatchLaterWithoutSESSDATA(t *testing.T) {
	client := bilibili.NewClient(bilibili.Config{APIBaseURL: "http://127.0.0.1:1"})
	defer client.Close()
	if _, err := client.WatchLater(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestWatchLaterOtherCodeIsPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":-412,"message":"请求被拦截"}`))
	}))
	defer server.Close()

	client := bilibili.NewClient(bilibili.Config{APIBaseURL: server.URL, SESSDATA: "abc"})
	defer client.Close()

	_, err := client.WatchLater(context.Background())
	if err == nil || errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected non-configuration error, got %v", err)
	}
}

func TestVideoInfoAndTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/x/web-interface/view" || r.URL.Query().Get("bvid") != "BV1xx411c7mD" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"bvid":"BV1xx411c7mD","title":" 标题 ","owner":{"name":"up"},"duration":90,"desc":"d"}}`))
	}))
	defer server.Close()

	client := bilibili.NewClient(bilibili.Config{APIBaseURL: server.URL})
	defer client.Close()

	info, err := client.VideoInfo(context.Background(), "BV1xx411c7mD")
	if err != nil {
		t.Fatalf("VideoInfo returned error: %v", err)
	}
	if info.Owner != "up" || info.DurationSeconds != 90 || info.Description != "d" {
		t.Fatalf("unexpected info %+v", info)
	}
	title, err := client.Title(context.Background(), "BV1xx411c7mD")
	if err != nil || title != "标题" {
		t.Fatalf("Title = %q, %v", title, err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	client := bilibili.NewClient(bilibili.Config{APIBaseURL: server.URL})
	defer client.Close()
	if _, err := client.VideoInfo(context.Background(), "BV1xx411c7mD"); err == nil {
		t.Fatal("expected error for 502")
	}
}
