package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"git.home.luguber.info/inful/meshpack/internal/config"
)

// authMethod returns the go-git AuthMethod for a checkout, or nil for anonymous access.
func authMethod(a *config.AuthConfig) (transport.AuthMethod, error) {
	if a.IsZero() {
		return nil, nil
	}
	switch a.Type {
	case config.AuthTypeToken:
		if a.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		return &http.BasicAuth{Username: "token", Password: a.Token}, nil
	case config.AuthTypeBasic:
		if a.Username == "" || a.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: a.Username, Password: a.Password}, nil
	case config.AuthTypeSSH:
		if a.KeyPath == "" {
			return nil, fmt.Errorf("ssh authentication requires key_path")
		}
		keys, err := ssh.NewPublicKeysFromFile("git", a.KeyPath, a.Password)
		if err != nil {
			return nil, fmt.Errorf("load ssh key %s: %w", a.KeyPath, err)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("unsupported authentication type %q", a.Type)
	}
}
