package services

const (
	EntityTypeGame = "game"

	JobTypeGamePublish      = "game_publish"
	JobTypeLikeSync         = "like_sync"
	JobTypeLikeCountRefresh = "like_count_refresh"
)
