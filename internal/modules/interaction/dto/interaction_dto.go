package dto

import "anoa.com/threadline/internal/entity"

// ToggleRequest names the interaction either by id or by name; the id wins
// when both are sent.
type ToggleRequest struct {
	TargetType        string          `json:"target_type" binding:"required,oneof=post comment"`
	TargetID          uint            `json:"target_id" binding:"required,gt=0"`
	InteractionTypeID uint            `json:"interaction_type_id"`
	InteractionType   string          `json:"interaction_type"`
	Metadata          entity.Metadata `json:"metadata"`
}

type ReactionRequest struct {
	TargetType string `json:"target_type" binding:"required,oneof=post comment"`
	TargetID   uint   `json:"target_id" binding:"required,gt=0"`
	Reaction   string `json:"reaction" binding:"required,oneof=like dislike"`
}

type ToggleResponse struct {
	TargetType      string           `json:"target_type"`
	TargetID        uint             `json:"target_id"`
	InteractionType string           `json:"interaction_type"`
	Applied         bool             `json:"applied"`
	Count           int64            `json:"count"`
	Counts          map[string]int64 `json:"counts"`
}

type ReactionResponse struct {
	TargetType string           `json:"target_type"`
	TargetID   uint             `json:"target_id"`
	Reaction   string           `json:"reaction"`
	Applied    bool             `json:"applied"`
	Counts     map[string]int64 `json:"counts"`
	State      map[string]bool  `json:"state"`
}

type SnapshotResponse struct {
	TargetType string           `json:"target_type"`
	TargetID   uint             `json:"target_id"`
	Counts     map[string]int64 `json:"counts"`
	State      map[string]bool  `json:"state,omitempty"`
}
