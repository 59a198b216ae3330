package main

import (
	"os"
	"testing"

	"bt-announce/bencode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetainfoView(t *testing.T) {
	v, err := bencode.Decode([]byte("d8:announce3:foo4:infod4:name1:x6:pieces40:" +
		"aaaaaaaaaaaaaaaaaaaabbbbbbbbbbbbbbbbbbbb12:piece lengthi16384eee"))
	require.NoError(t, err)

	view, err := metainfoView(v)
	require.NoError(t, err)
	out, err := bencode.ToJSON(view)
	require.NoError(t, err)
	assert.Equal(t, `{"announce":"foo","info":{"name":"x","pieces":"<2 hashes>","piece length":16384}}`, string(out))
}

func TestMetainfoView_torrentFile(t *testing.T) {
	data, err := os.ReadFile("../../common/bittorrent/testdata/single.torrent")
	require.NoError(t, err)
	v, err := bencode.Decode(data)
	require.NoError(t, err)

	view, err := metainfoView(v)
	require.NoError(t, err)
	d := view.(bencode.Dict)
	assert.Equal(t, v.(bencode.Dict).Keys(), d.Keys())
	pieces, ok := bencode.GetString(d, "info.pieces")
	assert.True(t, ok)
	assert.Regexp(t, `^<\d+ hashes>$`, pieces)

	_, err = metainfoView(bencode.List{bencode.Int(1)})
	assert.NoError(t, err)
}
