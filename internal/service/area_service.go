package service

import (
	"context"

	"task-planner/internal/model"
	"task-planner/internal/repository"
)

// AreaOverview is an area with the projects filed under it.
type AreaOverview struct {
	Area     model.Area
	Projects []model.Project
}

// AreaService exposes area and project helpers.
type AreaService struct {
	areaRepo    *repository.AreaRepository
	projectRepo *repository.ProjectRepository
}

func NewAreaService(areaRepo *repository.AreaRepository, projectRepo *repository.ProjectRepository) *AreaService {
	return &AreaService{areaRepo: areaRepo, projectRepo: projectRepo}
}

func (s *AreaService) List(ctx context.Context, userID uint) ([]model.Area, error) {
	return s.areaRepo.ListByUser(ctx, userID)
}

// Overview groups the user's projects by area. Projects without an area are
// returned separately.
func (s *AreaService) Overview(ctx context.Context, userID uint) ([]AreaOverview, []model.Project, error) {
	areas, err := s.areaRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	projects, err := s.projectRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	out := make([]AreaOverview, len(areas))
	index := make(map[uint]int, len(areas))
	for i, area := range areas {
		out[i].Area = area
		index[area.ID] = i
	}

	var loose []model.Project
	for _, project := range projects {
		if project.AreaID != nil {
			if i, ok := index[*project.AreaID]; ok {
				out[i].Projects = append(out[i].Projects, project)
				continue
			}
		}
		loose = append(loose, project)
	}
	return out, loose, nil
}
