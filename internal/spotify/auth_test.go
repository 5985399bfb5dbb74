package spotify

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenSourceRefreshes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		if got := r.Form.Get("refresh_token"); got != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	old := authEndpoint
	authEndpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/api/token"}
	defer func() { authEndpoint = old }()

	creds := Credentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh-1"}
	src, err := creds.TokenSource(context.Background())
	if err != nil {
		t.Fatalf("TokenSource: %v", err)
	}
	token, err := src.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token.AccessToken != "fresh-token" {
		t.Errorf("access token = %q, want fresh-token", token.AccessToken)
	}

	// The second read must come from the cache, not another refresh call.
	again, err := src.Token()
	if err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if again.AccessToken != "fresh-token" {
		t.Errorf("cached access token = %q, want fresh-token", again.AccessToken)
	}
}

func TestTokenSourceRequiresRefreshToken(t *testing.T) {
	_, err := Credentials{ClientID: "id", ClientSecret: "secret"}.TokenSource(context.Background())
	if err == nil {
		t.Fatal("TokenSource succeeded without a refresh token")
	}
}

func TestWaitForCallback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		code, err := waitForCallback(context.Background(), ln, "st-1")
		done <- result{code, err}
	}()

	base := "http://" + ln.Addr().String()

	// A request with the wrong state is answered but does not resolve the
	// flow.
	resp, err := http.Get(base + "/callback?code=evil&state=wrong")
	if err != nil {
		t.Fatalf("GET mismatched callback: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("mismatched state status = %d, want 400", resp.StatusCode)
	}
	select {
	case r := <-done:
		t.Fatalf("callback resolved early: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	resp, err = http.Get(base + "/callback?code=abc&state=st-1")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "You can now close this tab.") {
		t.Errorf("callback page = %q, want the close-tab hint", body)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("waitForCallback: %v", r.err)
		}
		if r.code != "abc" {
			t.Errorf("code = %q, want abc", r.code)
		}
	case <-time.After(time.Second):
		t.Fatal("waitForCallback did not resolve")
	}
}

func TestWaitForCallbackRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	errs := make(chan error, 1)
	go func() {
		_, err := waitForCallback(context.Background(), ln, "st-1")
		errs <- err
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/callback?error=access_denied&state=st-1")
	if err != nil {
		t.Fatalf("GET callback: %v", err)
	}
	resp.Body.Close()

	select {
	case err := <-errs:
		if err == nil || !strings.Contains(err.Error(), "access_denied") {
			t.Errorf("err = %v, want authorization refusal", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitForCallback did not resolve")
	}
}

func TestWaitForCallbackContextCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := waitForCallback(ctx, ln, "st-1")
		errs <- err
	}()
	cancel()

	select {
	case err := <-errs:
		if err == nil {
			t.Error("waitForCallback returned nil after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("waitForCallback did not resolve")
	}
}
