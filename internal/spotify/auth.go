package spotify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	spotifyauth "golang.org/x/oauth2/spotify"
)

const (
	loginAddr   = ":12345"
	redirectURL = "http://localhost:12345/callback"
)

// authEndpoint is a variable so tests can point the flow at a fake
// accounts service.
var authEndpoint = spotifyauth.Endpoint

// scopes covers playback control, device and state reads for the players,
// and playlist reads for the daemon's catalog.
var scopes = []string{
	"user-modify-playback-state",
	"user-read-playback-state",
	"playlist-read-private",
	"playlist-read-collaborative",
}

// Credentials hold the application's OAuth client plus the refresh token
// obtained from the login flow.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c Credentials) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     authEndpoint,
	}
}

// TokenSource mints access tokens from the stored refresh token, caching
// each one until it expires.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if c.RefreshToken == "" {
		return nil, errors.New("spotify: no refresh token, run the login flow first")
	}
	return c.config().TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken}), nil
}

// Login walks the authorization-code flow: it prints the consent URL,
// waits for the account service to redirect to the local callback port and
// exchanges the code. It returns the refresh token to store in the config.
func Login(ctx context.Context, creds Credentials) (string, error) {
	conf := creds.config()
	state := uuid.NewString()

	ln, err := net.Listen("tcp", loginAddr)
	if err != nil {
		return "", fmt.Errorf("listening for the oauth callback: %w", err)
	}
	defer ln.Close()

	authURL := conf.AuthCodeURL(state)
	fmt.Printf("Open this URL in your browser to authorize midi-hub:\n\n  %s\n\n", authURL)
	openBrowser(authURL)

	code, err := waitForCallback(ctx, ln, state)
	if err != nil {
		return "", err
	}
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchanging authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return "", errors.New("authorization response carried no refresh token")
	}
	return token.RefreshToken, nil
}

// waitForCallback serves the redirect endpoint on ln until one
// authorization outcome arrives or the context ends.
func waitForCallback(ctx context.Context, ln net.Listener, state string) (string, error) {
	type outcome struct {
		code string
		err  error
	}
	results := make(chan outcome, 1)
	deliver := func(o outcome) {
		select {
		case results <- o:
		default:
		}
	}

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/callback" {
			http.NotFound(w, r)
			return
		}
		query := r.URL.Query()
		if query.Get("state") != state {
			// Not our redirect; keep waiting for the real one.
			http.Error(w, "State mismatch.", http.StatusBadRequest)
			return
		}
		if reason := query.Get("error"); reason != "" {
			http.Error(w, "Authorization failed: "+reason, http.StatusBadRequest)
			deliver(outcome{err: fmt.Errorf("authorization refused: %s", reason)})
			return
		}
		code := query.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code.", http.StatusBadRequest)
			deliver(outcome{err: errors.New("callback carried no code")})
			return
		}
		fmt.Fprintln(w, "You can now close this tab.")
		deliver(outcome{code: code})
	})}
	go srv.Serve(ln)
	defer srv.Close()

	select {
	case result := <-results:
		return result.code, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func openBrowser(url string) {
	// Best effort: the URL is printed either way.
	_ = exec.Command("xdg-open", url).Start()
}
