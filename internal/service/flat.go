package service

import (
	"context"

	"github.com/filevars/webui/internal/cache"
	"github.com/filevars/webui/internal/gitlab"
)

// Projects returns one page of projects through the flat cache.
func (s *Services) Projects(ctx context.Context, q gitlab.ProjectQuery) (*gitlab.ProjectPage, error) {
	if q.MinAccessLevel == 0 {
		q.MinAccessLevel = s.Config.MinAccessLevel
	}
	key := cache.Key("projects", q.GroupID, q.Search, q.Page, q.PerPage, q.MinAccessLevel)
	return cache.GetOrLoad(ctx, s.Cache, key, s.Config.ProjectsCacheTTL, func(ctx context.Context) (*gitlab.ProjectPage, error) {
		return s.GitLab.ListProjects(ctx, q)
	})
}

// SampleProjects returns the first n projects of a group, used by the UI
// to preview a group without paging through it.
func (s *Services) SampleProjects(ctx context.Context, groupID int64, n int) ([]gitlab.Project, error) {
	if n <= 0 {
		n = 5
	}
	key := cache.Key("projects_sample", groupID, n, s.Config.MinAccessLevel)
	return cache.GetOrLoad(ctx, s.Cache, key, s.Config.ProjectsCacheTTL, func(ctx context.Context) ([]gitlab.Project, error) {
		page, err := s.GitLab.ListProjects(ctx, gitlab.ProjectQuery{
			GroupID:        groupID,
			PerPage:        n,
			MinAccessLevel: s.Config.MinAccessLevel,
		})
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
}

// CountGroupProjects counts the projects visible in a group and its
// subgroups through the flat cache.
func (s *Services) CountGroupProjects(ctx context.Context, groupID int64) (int, error) {
	key := cache.Key("projects_count", groupID, s.Config.MinAccessLevel)
	return cache.GetOrLoad(ctx, s.Cache, key, s.Config.CountsCacheTTL, func(ctx context.Context) (int, error) {
		return s.GitLab.CountProjects(ctx, gitlab.ProjectQuery{GroupID: groupID, MinAccessLevel: s.Config.MinAccessLevel})
	})
}

// Environments lists a project's environments through the flat cache.
func (s *Services) Environments(ctx context.Context, projectID int64) ([]gitlab.Environment, error) {
	key := cache.Key("environments", projectID)
	return cache.GetOrLoad(ctx, s.Cache, key, s.Config.EnvironmentsCacheTTL, func(ctx context.Context) ([]gitlab.Environment, error) {
		return s.GitLab.ListEnvironments(ctx, projectID)
	})
}
