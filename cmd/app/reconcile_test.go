package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-access-subscription/internal/domain/model"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

func TestWriteReport(t *testing.T) {
	t.Run("report is printed and the pass error kept", func(t *testing.T) {
		var buf bytes.Buffer
		passErr := errors.New("expire: boom")
		err := writeReport(&buf, model.PassReport{Expired: 3}, passErr)
		assert.ErrorIs(t, err, passErr)

		var got model.PassReport
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, 3, got.Expired)
	})

	t.Run("a report that cannot be written fails the command", func(t *testing.T) {
		err := writeReport(brokenWriter{}, model.PassReport{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stdout closed")
	})
}
