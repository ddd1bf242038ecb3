// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSoftLimitBytes_DefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())
}

func TestSoftLimitBytes_ReadsValidEnvOverride(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "1024")
	assert.Equal(t, 1024, SoftLimitBytes())
}

func TestSoftLimitBytes_IgnoresInvalidOrNonPositiveEnv(t *testing.T) {
	t.Setenv("CIE_SOFT_LIMIT_BYTES", "not-a-number")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())

	t.Setenv("CIE_SOFT_LIMIT_BYTES", "-5")
	assert.Equal(t, DefaultSoftLimitBytes, SoftLimitBytes())
}

func TestValidateQuestion_RejectsEmpty(t *testing.T) {
	v := ValidateQuestion("")
	assert.False(t, v.OK)
}

func TestValidateQuestion_RejectsOverLongQuestion(t *testing.T) {
	v := ValidateQuestion(strings.Repeat("a", QuestionMaxBytes+1))
	assert.False(t, v.OK)
}

func TestValidateQuestion_AcceptsNormalQuestion(t *testing.T) {
	v := ValidateQuestion("what does the retrieval engine do?")
	assert.True(t, v.OK)
}
