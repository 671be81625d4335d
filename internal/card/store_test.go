package card

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/store/filestore"
)

func newTestStore(t *testing.T) (*Store, filestore.Store) {
	t.Helper()
	files, err := filestore.NewDirStore(t.TempDir())
	require.NoError(t, err)
	return NewStore(files, nil, logging.NewNop()), files
}

func cardJSON(name string) []byte {
	return []byte(fmt.Sprintf(
		`{"data":{"name":%q,"personality":"grim","scenario":"a castle","first_mes":"Hello."}}`,
		name,
	))
}

func TestLoadAll_IncludesValidSkipsInvalid(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, files.Write("Wizard.json", cardJSON("Wizard")))
	require.NoError(t, files.Write("broken.json", []byte("{not json")))
	require.NoError(t, files.Write("incomplete.json", []byte(`{"data":{"name":"X"}}`)))
	require.NoError(t, files.Write("notes.txt", []byte("ignored")))

	index, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, index, 1)
	require.Equal(t, "Wizard", index["Wizard.json"].Data.Name)
	require.False(t, index["Wizard.json"].Custom)
}

func TestLoadAll_StripsOwnerPrefixFromCustomKeys(t *testing.T) {
	s, files := newTestStore(t)

	require.NoError(t, files.Write("custom/42_Villain.json", cardJSON("Villain")))

	index, err := s.LoadAll(context.Background())
	require.NoError(t, err)

	c, ok := index["custom/42_Villain.json"]
	require.True(t, ok)
	require.True(t, c.Custom)
	require.Equal(t, "Villain", c.Key)
	require.Equal(t, "42", c.OwnerID)
}

func TestLoadAll_KeepsSameNamedBuiltinAndCustom(t *testing.T) {
	s, files := newTestStore(t)

	require.NoError(t, files.Write("Villain.json", cardJSON("Builtin Villain")))
	require.NoError(t, files.Write("custom/42_Villain.json", cardJSON("Custom Villain")))

	index, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, index, 2)
	require.Equal(t, "Builtin Villain", index["Villain.json"].Data.Name)
	require.Equal(t, "Custom Villain", index["custom/42_Villain.json"].Data.Name)
}

func TestListForUser_CustomShadowsBuiltinForOwnerOnly(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, files.Write("Villain.json", cardJSON("Builtin Villain")))
	require.NoError(t, files.Write("custom/42_Villain.json", cardJSON("Custom Villain")))

	mine, err := s.ListForUser(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Custom Villain", mine["Villain"].Data.Name)

	// the builtin stays visible to everyone else
	other, err := s.ListForUser(ctx, "7")
	require.NoError(t, err)
	require.Contains(t, other, "Villain")
	require.Equal(t, "Builtin Villain", other["Villain"].Data.Name)
	require.False(t, other["Villain"].Custom)
}

func TestListForUser_SameNameAcrossOwners(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, files.Write("custom/42_Rival.json", cardJSON("Rival of 42")))
	require.NoError(t, files.Write("custom/7_Rival.json", cardJSON("Rival of 7")))

	first, err := s.ListForUser(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Rival of 42", first["Rival"].Data.Name)

	second, err := s.ListForUser(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "Rival of 7", second["Rival"].Data.Name)
}

func TestListForUser_HidesOtherOwnersCustoms(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, files.Write("Wizard.json", cardJSON("Wizard")))
	require.NoError(t, files.Write("custom/42_Villain.json", cardJSON("Villain")))

	mine, err := s.ListForUser(ctx, "42")
	require.NoError(t, err)
	require.Contains(t, mine, "Wizard")
	require.Contains(t, mine, "Villain")

	other, err := s.ListForUser(ctx, "7")
	require.NoError(t, err)
	require.Contains(t, other, "Wizard")
	require.NotContains(t, other, "Villain")
}

func TestImportFromUpload_JSONDocument(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	sum, err := s.ImportFromUpload(ctx, "42", "villain.json", cardJSON("Villain!!"))
	require.NoError(t, err)
	require.Equal(t, "Villain", sum.Key)
	require.Equal(t, "42_Villain", sum.StoredAs)

	// immediately visible in the importer's menu
	view, err := s.ListForUser(ctx, "42")
	require.NoError(t, err)
	require.Contains(t, view, "Villain")

	_, err = files.Read("custom/42_Villain.json")
	require.NoError(t, err)
}

func TestImportFromUpload_PNGPersistsImage(t *testing.T) {
	s, files := newTestStore(t)
	ctx := context.Background()

	doc := cardJSON("Knight")
	img := buildPNG(
		textChunk("chara", []byte(base64.StdEncoding.EncodeToString(doc))),
		chunk("IEND", nil),
	)

	sum, err := s.ImportFromUpload(ctx, "7", "knight.PNG", img)
	require.NoError(t, err)
	require.Equal(t, "Knight", sum.Key)

	storedDoc, err := files.Read("custom/7_Knight.json")
	require.NoError(t, err)
	require.Equal(t, doc, storedDoc)

	storedImg, err := files.Read("custom/7_Knight.png")
	require.NoError(t, err)
	require.Equal(t, img, storedImg)
}

func TestImportFromUpload_Failures(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.ImportFromUpload(ctx, "1", "card.json", []byte("{broken"))
	require.ErrorIs(t, err, ErrUnreadable)

	_, err = s.ImportFromUpload(ctx, "1", "card.json", []byte(`{"data":{"name":"OnlyName"}}`))
	require.ErrorIs(t, err, ErrMalformedCard)

	_, err = s.ImportFromUpload(ctx, "1", "card.json", cardJSON("!!!"))
	require.ErrorIs(t, err, ErrInvalidName)

	img := buildPNG(chunk("IEND", nil))
	_, err = s.ImportFromUpload(ctx, "1", "card.png", img)
	require.ErrorIs(t, err, ErrNoEmbeddedData)
}

type fakeCache struct {
	index       map[string]Card
	invalidated int
}

func (c *fakeCache) Get(context.Context) (map[string]Card, bool) {
	if c.index == nil {
		return nil, false
	}
	return c.index, true
}
func (c *fakeCache) Set(_ context.Context, index map[string]Card) { c.index = index }
func (c *fakeCache) Invalidate(context.Context) {
	c.index = nil
	c.invalidated++
}

func TestImportFromUpload_InvalidatesCache(t *testing.T) {
	files, err := filestore.NewDirStore(t.TempDir())
	require.NoError(t, err)
	cache := &fakeCache{}
	s := NewStore(files, cache, logging.NewNop())
	ctx := context.Background()

	_, err = s.LoadAll(ctx) // warm
	require.NoError(t, err)
	require.NotNil(t, cache.index)

	_, err = s.ImportFromUpload(ctx, "42", "v.json", cardJSON("Villain"))
	require.NoError(t, err)
	require.Equal(t, 1, cache.invalidated)

	index, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, index, "custom/42_Villain.json")
}
