package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerValid(t *testing.T) {
	assert.True(t, TriggerNewsletterSignup.Valid())
	assert.True(t, TriggerCoursePurchase.Valid())
	assert.True(t, Trigger("course_inactive_14_days").Valid())

	assert.False(t, Trigger("newsleter_signup").Valid()) // typo must not match
	assert.False(t, Trigger("").Valid())
}
