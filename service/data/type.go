package data

import "github.com/khaledhikmat/vs-detect/model"

type IService interface {
	NewError(err interface{}) error
	NewSessionStats(stats model.SessionStats) error
	NewDetections(record model.DetectionsRecord) error
	Close() error
}
