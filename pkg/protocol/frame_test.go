package protocol

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncoding(t *testing.T) {
	t.Run("NoArgs", func(t *testing.T) {
		assert.Equal(t, "LIST_USERS\n", Frame(VerbListUsers))
	})

	t.Run("WithArgs", func(t *testing.T) {
		assert.Equal(t, "CREATE;notes.txt\n", Frame(VerbCreate, "notes.txt"))
		assert.Equal(t, "WRITE_DATA;0;Hello\n", Frame(SSVerbWriteData, "0", "Hello"))
	})
}

func TestParseFrame(t *testing.T) {
	tests := []struct {
		name string
		line string
		verb string
		args []string
	}{
		{"Simple", "LIST_USERS\n", "LIST_USERS", nil},
		{"WithArgs", "ADDACCESS;f.txt;bob;R\n", "ADDACCESS", []string{"f.txt", "bob", "R"}},
		{"NoNewline", "INFO;f.txt", "INFO", []string{"f.txt"}},
		{"CRLF", "READ;f.txt\r\n", "READ", []string{"f.txt"}},
		{"Empty", "\n", "", nil},
		{"EmptyTrailingField", "VIEW;\n", "VIEW", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verb, args := ParseFrame(tt.line)
			assert.Equal(t, tt.verb, verb)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestReadUntilMarker(t *testing.T) {
	t.Run("PayloadThenMarker", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("Hello world.\n__SS_END__\n"))
		payload, err := ReadUntilMarker(r, SSEndMarker)
		require.NoError(t, err)
		assert.Equal(t, "Hello world.", payload)
	})

	t.Run("MultilinePayload", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("line one\nline two\n__END__\n"))
		payload, err := ReadUntilMarker(r, EndMarker)
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two", payload)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("__END__\n"))
		payload, err := ReadUntilMarker(r, EndMarker)
		require.NoError(t, err)
		assert.Equal(t, "", payload)
	})

	t.Run("TruncatedStream", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("partial payload\n"))
		_, err := ReadUntilMarker(r, EndMarker)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "__END__")
	})

	t.Run("MarkerWithoutFinalNewline", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("data\n__SS_END__"))
		payload, err := ReadUntilMarker(r, SSEndMarker)
		require.NoError(t, err)
		assert.Equal(t, "data", payload)
	})
}

func TestWritePayload(t *testing.T) {
	t.Run("AppendsMarkerOnOwnLine", func(t *testing.T) {
		var b strings.Builder
		require.NoError(t, WritePayload(&b, "Registered Users:\n-> alice", EndMarker))
		assert.Equal(t, "Registered Users:\n-> alice\n__END__\n", b.String())
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		var b strings.Builder
		require.NoError(t, WritePayload(&b, "", SSEndMarker))
		assert.Equal(t, "__SS_END__\n", b.String())
	})

	t.Run("NewlineTerminatedPayload", func(t *testing.T) {
		var b strings.Builder
		require.NoError(t, WritePayload(&b, "done\n", EndMarker))
		assert.Equal(t, "done\n__END__\n", b.String())
	})
}

func TestValidateName(t *testing.T) {
	valid := []string{"notes.txt", "a", "report-2024.md", "file_1.txt", "docs/notes.txt"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "a;b", "a\nb", "a\rb", "../etc/passwd", "..", "a/b/c", "/abs", "dir/", `dir\file`}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), name)
	}
}
