package model

// Wire status discriminators carried by every API response.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)
