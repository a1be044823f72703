package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrompt_UserOnly(t *testing.T) {
	msgs := Prompt("hello", "")
	assert.Equal(t, []Message{{Role: RoleUser, Content: "hello"}}, msgs)
}

func TestPrompt_SystemFirst(t *testing.T) {
	msgs := Prompt("hello", "be brief")
	assert.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, "be brief", msgs[0].Content)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}
