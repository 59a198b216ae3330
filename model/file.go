package model

import "bt-announce/common/bittorrent"

type File struct {
	Length int64    `bson:"length" json:"length"`
	Paths  []string `bson:"paths" json:"paths"`
}

func NewFileFromBTFile(file *bittorrent.File) *File {
	return &File{
		Length: file.Length,
		Paths:  file.Path,
	}
}
