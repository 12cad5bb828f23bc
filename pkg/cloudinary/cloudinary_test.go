package cloudinary

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPublicIDIsDeterministic(t *testing.T) {
	require.Equal(t, "3_A123_report.pdf", PublicID("3_A123_report.pdf"))
	require.Equal(t, PublicID("3_A123_report.pdf"), PublicID("3_A123_report.pdf"))
	require.Equal(t, "file_----etcpasswd.txt", PublicID("file_.(.)etcpasswd.TXT"))
	require.Equal(t, "upload.png", PublicID("...png"))
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}
