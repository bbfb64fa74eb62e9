package domain

import (
	"github.com/yungbote/playhub-backend/internal/domain/games"
	"github.com/yungbote/playhub-backend/internal/domain/jobs"
)

const (
	GameStatusActive   = games.StatusActive
	GameStatusDisabled = games.StatusDisabled

	ProcessingPending    = games.ProcessingPending
	ProcessingProcessing = games.ProcessingProcessing
	ProcessingCompleted  = games.ProcessingCompleted
	ProcessingFailed     = games.ProcessingFailed

	FileKindGameIndex = games.FileKindGameIndex
	FileKindThumbnail = games.FileKindThumbnail

	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
	JobStatusCanceled  = jobs.StatusCanceled
)

type Game = games.Game
type Category = games.Category
type PositionHistory = games.PositionHistory
type ExplicitLike = games.ExplicitLike
type LikeCountCache = games.LikeCountCache
type File = games.File

type JobRun = jobs.JobRun
