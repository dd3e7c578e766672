package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidStudentFilename(t *testing.T) {
	valid := []string{
		"2023A7PS0043H.sql",
		"2021B4AA1234Z.sql",
		"2023a7ps0043h.SQL",
	}
	for _, name := range valid {
		assert.True(t, ValidStudentFilename(name), name)
	}

	invalid := []string{
		"submission.sql",
		"ans.sql",
		"2023A7PS0043H.txt",
		"2023A7PS0043.sql",
		"202A7PS0043H.sql",
		"2023A7PS0043H.sql.bak",
	}
	for _, name := range invalid {
		assert.False(t, ValidStudentFilename(name), name)
	}
}

func TestCheckFormat(t *testing.T) {
	t.Run("fully formatted file passes", func(t *testing.T) {
		findings := CheckFormat("--1--\nSELECT 1;\n--2--\nSELECT 2;\n", 2)
		require.Len(t, findings, 2)
		for _, f := range findings {
			assert.Equal(t, FindingPass, f.Level)
		}
		assert.True(t, FormatOK(findings))
	})

	t.Run("missing terminator is only a warning", func(t *testing.T) {
		findings := CheckFormat("--1--\nSELECT 1\n", 1)
		require.Len(t, findings, 1)
		assert.Equal(t, FindingWarn, findings[0].Level)
		assert.True(t, FormatOK(findings))
	})

	t.Run("missing marker fails that question", func(t *testing.T) {
		findings := CheckFormat("--1--\nSELECT 1;\n", 2)
		require.Len(t, findings, 2)
		assert.Equal(t, FindingPass, findings[0].Level)
		assert.Equal(t, FindingFail, findings[1].Level)
		assert.Contains(t, findings[1].Message, "--2--")
		assert.False(t, FormatOK(findings))
	})

	t.Run("unparseable file yields a file-level failure", func(t *testing.T) {
		findings := CheckFormat("--1--\n\n--2--\nSELECT 2;\n", 2)
		require.Len(t, findings, 1)
		assert.Equal(t, 0, findings[0].Index)
		assert.Equal(t, FindingFail, findings[0].Level)
		assert.False(t, FormatOK(findings))
	})
}
