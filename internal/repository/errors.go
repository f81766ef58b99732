package repository

import "errors"

var (
	// ErrUnsupportedSource indicates no source fetcher handles the URL
	ErrUnsupportedSource = errors.New("unsupported source URL")

	// ErrAzureNotConfigured indicates a blob URL was seen without Azure credentials
	ErrAzureNotConfigured = errors.New("azure storage is not configured")
)
