package bittorrent

import "strings"

type File struct {
	ED2K     []byte         `mapstructure:"ed2k" json:"ed2k,omitempty"`
	FileHash []byte         `mapstructure:"filehash" json:"file_hash,omitempty"`
	Length   int64          `mapstructure:"length" json:"length"`
	Path     []string       `mapstructure:"path" json:"path"`
	Other    map[string]any `mapstructure:",remain" json:"other,omitempty"`
}

// FullPath joins the path elements with "/".
func (f *File) FullPath() string {
	return strings.Join(f.Path, "/")
}
