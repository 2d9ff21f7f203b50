package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"todoflow/domain/core/entities"
	"todoflow/infrastructure/credential"
)

// LoginRequest is the body of POST /auth/login. AccessToken is the identity
// provider's token, not a backend token.
type LoginRequest struct {
	UID          string  `json:"uid"`
	Email        string  `json:"email"`
	DisplayName  string  `json:"displayName"`
	PhotoURL     *string `json:"photoURL,omitempty"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

// LoginResponse is the backend's answer to a login.
type LoginResponse struct {
	User         entities.User `json:"user"`
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken"`
}

// SignIn runs the identity provider's sign-in and exchanges its token for a
// backend session.
func (c *Client) SignIn(ctx context.Context) (*entities.User, error) {
	if c.provider == nil {
		return nil, ErrNotAuthenticated
	}
	res, err := c.provider.SignIn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	login, err := c.Login(ctx, LoginRequest{
		UID:          res.Identity.UID,
		Email:        res.Identity.Email,
		DisplayName:  res.Identity.DisplayName,
		PhotoURL:     res.Identity.PhotoURL,
		AccessToken:  res.IDToken,
		RefreshToken: res.RefreshToken,
	})
	if err != nil {
		return nil, err
	}
	return &login.User, nil
}

// Login exchanges an identity token for backend tokens and stores them.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	resp, err := c.Do(ctx, &Request{Method: http.MethodPost, Path: "/auth/login", Body: in, Anonymous: true})
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	c.store.Save(ctx, credential.Credential{
		Identity:     out.User,
		BearerToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
	})
	c.logger.Info("Logged in", zap.String("uid", out.User.UID))
	return &out, nil
}

// Logout revokes the backend session and forgets the credential locally even
// if the backend cannot be reached.
func (c *Client) Logout(ctx context.Context) error {
	var err error
	if cred, ok := c.store.Current(ctx); ok && cred.RefreshToken != "" {
		c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: RefreshCookieName, Value: cred.RefreshToken, Path: "/"}})
		_, err = c.Do(ctx, &Request{
			Method:    http.MethodPost,
			Path:      "/auth/logout",
			Body:      map[string]string{"refreshToken": cred.RefreshToken},
			Anonymous: true,
		})
		if err != nil {
			c.logger.Warn("Backend logout failed", zap.Error(err))
		}
	}
	c.signOut(ctx)
	return err
}

// ListProjects returns the user's projects without their graphs.
func (c *Client) ListProjects(ctx context.Context) ([]entities.Project, error) {
	var out []entities.Project
	if err := c.call(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateProject creates an empty project.
func (c *Client) CreateProject(ctx context.Context, name string) (*entities.Project, error) {
	var out entities.Project
	if err := c.call(ctx, http.MethodPost, "/projects", map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameProject changes a project's name.
func (c *Client) RenameProject(ctx context.Context, id, name string) (*entities.Project, error) {
	var out entities.Project
	if err := c.call(ctx, http.MethodPatch, projectPath(id), map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject removes a project.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, projectPath(id), nil, nil)
}

// GetProject fetches a project with its graph.
func (c *Client) GetProject(ctx context.Context, id string) (*entities.Project, error) {
	var out entities.Project
	if err := c.call(ctx, http.MethodGet, projectPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchProject sends a graph diff and returns the project as stored.
func (c *Client) PatchProject(ctx context.Context, id string, patch entities.GraphPatch) (*entities.Project, error) {
	var out entities.Project
	if err := c.call(ctx, http.MethodPatch, projectPath(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, &Request{Method: method, Path: path, Body: body})
	if err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func projectPath(id string) string {
	return "/projects/" + url.PathEscape(id)
}
