package service

import "errors"

var (
	ErrRankingNotFound = errors.New("ranking not found")
	ErrRankingExists   = errors.New("ranking already exists")
	ErrInvalidRequest  = errors.New("invalid request")
)
