package gitlab

import "time"

// Group is the subset of a GitLab group the tree needs.
type Group struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Path          string    `json:"path"`
	FullPath      string    `json:"full_path"`
	ParentID      *int64    `json:"parent_id"`
	ProjectsCount int       `json:"projects_count,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DisplayName falls back to the path when the name is empty.
func (g Group) DisplayName() string {
	if g.Name != "" {
		return g.Name
	}
	return g.Path
}

// ChangedAt is the most recent known modification time of the group.
func (g Group) ChangedAt() time.Time {
	if !g.UpdatedAt.IsZero() {
		return g.UpdatedAt
	}
	return g.CreatedAt
}

// Namespace is the owning namespace embedded in project payloads.
type Namespace struct {
	ID       int64  `json:"id"`
	FullPath string `json:"full_path"`
}

// Project is a project summary.
type Project struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	PathWithNamespace string    `json:"path_with_namespace"`
	Namespace         Namespace `json:"namespace"`
}

// Variable is a CI/CD variable. Value is only populated on single-item reads.
type Variable struct {
	Key              string  `json:"key"`
	Value            string  `json:"value,omitempty"`
	VariableType     string  `json:"variable_type"`
	EnvironmentScope string  `json:"environment_scope"`
	Protected        bool    `json:"protected"`
	Masked           bool    `json:"masked"`
	Raw              bool    `json:"raw"`
	Hidden           bool    `json:"hidden"`
	Description      *string `json:"description,omitempty"`
}

// Environment is a project deployment environment.
type Environment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	State       string `json:"state"`
	ExternalURL string `json:"external_url,omitempty"`
}

// User is the token owner returned by GET /user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// VersionInfo is the answer of GET /version.
type VersionInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}
