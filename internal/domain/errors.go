package domain

import "errors"

var (
	ErrEmptyRecipients    = errors.New("recipients list is empty")
	ErrMissingTemplate    = errors.New("message template is missing")
	ErrCampaignNotFound   = errors.New("campaign not found")
	ErrNoFailedRecipients = errors.New("no failed recipients to retry")
)
