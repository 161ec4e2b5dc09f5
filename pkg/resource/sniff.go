package resource

import (
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Sniff detects the content type from the leading bytes of data.
func Sniff(data []byte) (types.Type, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return types.Unknown, NewError(ErrorUnknownType, err.Error())
	}
	if kind == filetype.Unknown {
		return types.Unknown, NewError(ErrorUnknownType, "unrecognized content")
	}

	return kind, nil
}

// IsImage reports whether data sniffs as an image.
func IsImage(data []byte) bool {
	return filetype.IsImage(data)
}

// IsAudio reports whether data sniffs as audio.
func IsAudio(data []byte) bool {
	return filetype.IsAudio(data)
}
