package variables

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/filevars/webui/internal/errors"
	"github.com/filevars/webui/internal/gitlab"
)

// Status classifies a successful upsert.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	// StatusRenamed covers both key/scope renames and the delete-and-recreate
	// needed to turn an existing variable hidden.
	StatusRenamed Status = "renamed"
)

// UpsertRequest is the caller's desired state of one variable. OriginalKey
// and OriginalEnvironmentScope name the variable being edited when it
// differs from the target.
type UpsertRequest struct {
	Key                      string  `json:"key"`
	Value                    string  `json:"value"`
	VariableType             string  `json:"variable_type,omitempty"`
	EnvironmentScope         string  `json:"environment_scope,omitempty"`
	Protected                bool    `json:"protected"`
	Masked                   bool    `json:"masked"`
	Raw                      bool    `json:"raw"`
	MaskedAndHidden          bool    `json:"masked_and_hidden,omitempty"`
	Description              *string `json:"description,omitempty"`
	OriginalKey              string  `json:"original_key,omitempty"`
	OriginalEnvironmentScope string  `json:"original_environment_scope,omitempty"`
}

// Result is the outcome of an upsert with the variable GitLab echoed back.
type Result struct {
	Status     Status          `json:"status"`
	Variable   gitlab.Variable `json:"variable"`
	DeletedOld *Ref            `json:"deleted_old,omitempty"`
}

// PartialFailure is attached to a partial-rename error. Exactly one of
// Kept or Lost is set: Kept is an old variable that survived next to the
// new one, Lost is a variable deleted and not recreated.
type PartialFailure struct {
	Created *gitlab.Variable `json:"created,omitempty"`
	Kept    *Ref             `json:"kept,omitempty"`
	Lost    *Ref             `json:"lost,omitempty"`
}

// PartialFailureOf extracts the PartialFailure carried by err.
func PartialFailureOf(err error) (*PartialFailure, bool) {
	var e *apperrors.Error
	if !errors.As(err, &e) || e.Type != apperrors.ErrorTypePartialRename {
		return nil, false
	}
	pf, ok := e.Body.(*PartialFailure)
	return pf, ok
}

// Validate normalises defaults and checks the request.
func (r *UpsertRequest) Validate() error {
	r.Key = strings.TrimSpace(r.Key)
	if r.Key == "" {
		return apperrors.Validationf("key is required")
	}
	if !keyPattern.MatchString(r.Key) {
		return apperrors.Validationf("key %q may only contain letters, digits and underscores", r.Key)
	}
	r.VariableType = orDefault(r.VariableType, TypeFile)
	if r.VariableType != TypeFile && r.VariableType != TypeEnvVar {
		return apperrors.Validationf("variable_type must be %q or %q, got %q", TypeFile, TypeEnvVar, r.VariableType)
	}
	r.EnvironmentScope = orDefault(strings.TrimSpace(r.EnvironmentScope), DefaultEnvironmentScope)

	r.OriginalKey = orDefault(strings.TrimSpace(r.OriginalKey), r.Key)
	if !keyPattern.MatchString(r.OriginalKey) {
		return apperrors.Validationf("original_key %q is not a valid key", r.OriginalKey)
	}
	r.OriginalEnvironmentScope = orDefault(strings.TrimSpace(r.OriginalEnvironmentScope), r.EnvironmentScope)
	return nil
}

// IsRename reports whether the request moves a variable to a new key or
// environment scope. Only meaningful after Validate.
func (r *UpsertRequest) IsRename() bool {
	return r.OriginalKey != r.Key || r.OriginalEnvironmentScope != r.EnvironmentScope
}

type writeBody struct {
	Key              string  `json:"key,omitempty"`
	Value            string  `json:"value"`
	VariableType     string  `json:"variable_type"`
	EnvironmentScope string  `json:"environment_scope"`
	Protected        bool    `json:"protected"`
	Masked           bool    `json:"masked"`
	Raw              bool    `json:"raw"`
	MaskedAndHidden  bool    `json:"masked_and_hidden,omitempty"`
	Description      *string `json:"description,omitempty"`
}

func (r *UpsertRequest) body(withKey, hidden bool) writeBody {
	b := writeBody{
		Value:            r.Value,
		VariableType:     r.VariableType,
		EnvironmentScope: r.EnvironmentScope,
		Protected:        r.Protected,
		Masked:           r.Masked,
		Raw:              r.Raw,
		Description:      r.Description,
	}
	if withKey {
		b.Key = r.Key
	}
	if hidden {
		b.MaskedAndHidden = true
		b.Masked = true
	}
	return b
}

// Upsert applies req to scope. GitLab has no rename, so a rename creates
// the new variable first and only then deletes the old one; if the create
// fails nothing changed. A failed delete after a successful create is
// reported as a partial-rename error carrying the created variable; the new
// variable is not rolled back.
func (s *Service) Upsert(ctx context.Context, scope Scope, req UpsertRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IsRename() {
		return s.rename(ctx, scope, &req)
	}

	existing, err := s.get(ctx, scope, req.Key, req.EnvironmentScope)
	switch {
	case isNotFound(err):
		created, err := s.create(ctx, scope, &req, req.MaskedAndHidden)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusCreated, Variable: *created}, nil
	case err != nil:
		return nil, err
	case req.MaskedAndHidden && !existing.Hidden:
		return s.recreateHidden(ctx, scope, &req)
	default:
		// Hidden cannot be toggled through an update, so the flag is never
		// sent here.
		updated, err := s.update(ctx, scope, &req)
		if err != nil {
			return nil, err
		}
		return &Result{Status: StatusUpdated, Variable: *updated}, nil
	}
}

func (s *Service) rename(ctx context.Context, scope Scope, req *UpsertRequest) (*Result, error) {
	old := Ref{Key: req.OriginalKey, EnvironmentScope: req.OriginalEnvironmentScope}

	created, err := s.create(ctx, scope, req, req.MaskedAndHidden)
	if err != nil {
		return nil, err
	}

	if err := s.Delete(ctx, scope, old.Key, old.EnvironmentScope); err != nil {
		s.log.Error("rename left a duplicate",
			"scope", scope.String(),
			"old_key", old.Key,
			"old_environment_scope", old.EnvironmentScope,
			"new_key", req.Key,
			"new_environment_scope", req.EnvironmentScope,
			"error", err,
		)
		perr := apperrors.PartialRename(err,
			fmt.Sprintf("created %s (%s) but could not delete %s (%s)", req.Key, req.EnvironmentScope, old.Key, old.EnvironmentScope))
		perr.Body = &PartialFailure{Created: created, Kept: &old}
		return nil, perr
	}

	return &Result{Status: StatusRenamed, Variable: *created, DeletedOld: &old}, nil
}

func (s *Service) recreateHidden(ctx context.Context, scope Scope, req *UpsertRequest) (*Result, error) {
	old := Ref{Key: req.Key, EnvironmentScope: req.EnvironmentScope}

	if err := s.Delete(ctx, scope, old.Key, old.EnvironmentScope); err != nil {
		return nil, err
	}
	created, err := s.create(ctx, scope, req, true)
	if err != nil {
		s.log.Error("hidden upgrade lost the variable",
			"scope", scope.String(),
			"key", old.Key,
			"environment_scope", old.EnvironmentScope,
			"error", err,
		)
		perr := apperrors.PartialRename(err,
			fmt.Sprintf("deleted %s (%s) to recreate it hidden, but the recreate failed", old.Key, old.EnvironmentScope))
		perr.Body = &PartialFailure{Lost: &old}
		return nil, perr
	}
	return &Result{Status: StatusRenamed, Variable: *created, DeletedOld: &old}, nil
}

func (s *Service) create(ctx context.Context, scope Scope, req *UpsertRequest, hidden bool) (*gitlab.Variable, error) {
	resp, err := s.up.Request(ctx, http.MethodPost, scope.collection(), nil, req.body(true, hidden))
	if err != nil {
		return nil, err
	}
	return decodeVariable(resp, scope.collection())
}

func (s *Service) update(ctx context.Context, scope Scope, req *UpsertRequest) (*gitlab.Variable, error) {
	resp, err := s.up.Request(ctx, http.MethodPut, scope.item(req.Key), envFilter(req.EnvironmentScope), req.body(false, false))
	if err != nil {
		return nil, err
	}
	return decodeVariable(resp, scope.item(req.Key))
}

func decodeVariable(resp *gitlab.Response, path string) (*gitlab.Variable, error) {
	var v gitlab.Variable
	if err := resp.Decode(&v); err != nil || v.Key == "" {
		return nil, apperrors.UnexpectedShape(path)
	}
	return &v, nil
}
