package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UkralStul/bunker-community-service/internal/blob"
	"github.com/UkralStul/bunker-community-service/internal/domain"
	"github.com/UkralStul/bunker-community-service/internal/storage"
	"github.com/UkralStul/bunker-community-service/internal/storage/inmemory"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	uaWindows = "Mozilla/5.0 (Windows)"
	uaAndroid = "Mozilla/5.0 (Linux; Android 13)"
)

func newTestHandler(t *testing.T) (*Handler, storage.Storage) {
	store := inmemory.New()
	blobs, err := blob.NewDisk(t.TempDir())
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewHandler(store, blobs, log), store
}

func doJSON(t *testing.T, h *Handler, method, path, userAgent string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("User-Agent", userAgent)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func register(t *testing.T, h *Handler, handle, secret string) {
	rec := doJSON(t, h, http.MethodPost, "/api/cadastro", uaWindows,
		map[string]string{"user": handle, "senha": secret})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegister(t *testing.T) {
	h, _ := newTestHandler(t)

	register(t, h, "Ana", "pw")

	// Повтор того же имени - 400 с ключом erro.
	rec := doJSON(t, h, http.MethodPost, "/api/cadastro", uaWindows,
		map[string]string{"user": "Ana", "senha": "pw2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "erro")
}

func TestRegisterMissingFields(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/cadastro", uaWindows,
		map[string]string{"user": "Ana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	rec := doJSON(t, h, http.MethodPost, "/api/login", uaAndroid,
		map[string]string{"user": "Ana", "senha": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Ana", body["user"])
	assert.Equal(t, true, body["online"])
	// Класс устройства текущего входа попадает в ответ.
	assert.Equal(t, domain.DeviceMobile, body["dispositivo"])
	// Секрет не сериализуется.
	assert.NotContains(t, rec.Body.String(), "pw")
}

func TestLoginWrongCredentials(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	rec := doJSON(t, h, http.MethodPost, "/api/login", uaWindows,
		map[string]string{"user": "Ana", "senha": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginBanned(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	rec := doJSON(t, h, http.MethodPost, "/api/admin/banir", uaWindows,
		map[string]string{"target_user": "Ana"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/login", uaWindows,
		map[string]string{"user": "Ana", "senha": "pw"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangeRoleGate(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	// Обычная роль не проходит.
	rec := doJSON(t, h, http.MethodPost, "/api/alterar_cargo", uaWindows,
		map[string]string{"admin_cargo": "Usuario", "target_user": "Ana", "novo_cargo": "Admin"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// "Submoderador" проходит по подстроке.
	rec = doJSON(t, h, http.MethodPost, "/api/alterar_cargo", uaWindows,
		map[string]string{"admin_cargo": "Submoderador", "target_user": "Ana", "novo_cargo": "Admin"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/perfil/Ana", uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Admin", decodeBody(t, rec)["cargo"])
}

func TestProfileNotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/perfil/Nobody", uaWindows, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func postForm(t *testing.T, h *Handler, path string, fields map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", uaWindows)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestPostModerationFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	// Пост от "Humano" уходит в очередь модерации.
	rec := postForm(t, h, "/api/postar", map[string]string{
		"autor": "Ana", "titulo": "Oi", "conteudo": "texto", "cargo": "Humano",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusPending, decodeBody(t, rec)["status"])

	// В снимке сообщества пост присутствует со статусом pendente.
	rec = doJSON(t, h, http.MethodGet, "/api/comunidade", uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var feed storage.Feed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, domain.StatusPending, feed.Posts[0].Status)

	// Модератор принимает пост.
	rec = doJSON(t, h, http.MethodPost, "/api/admin/gerenciar_post", uaWindows,
		map[string]string{"post_id": feed.Posts[0].ID, "acao": "aceitar"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/comunidade", uaWindows, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Equal(t, domain.StatusApproved, feed.Posts[0].Status)
}

func TestReviewPostRejectRemovesComments(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	rec := postForm(t, h, "/api/postar", map[string]string{
		"autor": "Ana", "titulo": "Oi", "conteudo": "texto", "cargo": "Humano",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var feed storage.Feed
	rec = doJSON(t, h, http.MethodGet, "/api/comunidade", uaWindows, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed.Posts, 1)
	postID := feed.Posts[0].ID

	rec = doJSON(t, h, http.MethodPost, "/api/comentar", uaWindows,
		map[string]string{"post_id": postID, "autor": "Bia", "texto": "oi"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/gerenciar_post", uaWindows,
		map[string]string{"post_id": postID, "acao": "recusar"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/comunidade", uaWindows, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &feed))
	assert.Empty(t, feed.Posts)
	assert.Empty(t, feed.Comments)
}

func TestReviewPostUnknown(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/admin/gerenciar_post", uaWindows,
		map[string]string{"post_id": "missing", "acao": "aceitar"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/admin/gerenciar_post", uaWindows,
		map[string]string{"post_id": "missing", "acao": "explodir"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesAndSurveil(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postForm(t, h, "/api/enviar_mensagem", map[string]string{
		"remetente": "Ana", "destinatario": "Bia", "texto": "oi",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postForm(t, h, "/api/enviar_mensagem", map[string]string{
		"remetente": "Bia", "destinatario": "Ana", "texto": "oi!",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Переписка пары симметрична и идет от старых к новым.
	rec = doJSON(t, h, http.MethodGet, "/api/ler_mensagens/Bia/Ana", uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var thread []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &thread))
	require.Len(t, thread, 2)
	assert.Equal(t, "oi", thread[0].Text)
	assert.Equal(t, "oi!", thread[1].Text)

	// Слежка отдает все сообщения цели, новые сначала, без авторизации.
	rec = doJSON(t, h, http.MethodGet, "/api/admin/espionar/Ana", uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "oi!", msgs[0].Text)
}

func TestAvatarUploadAndServe(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Ana", "pw")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user", "Ana"))
	fw, err := mw.CreateFormFile("foto", "face.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/atualizar_foto", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, ok := decodeBody(t, rec)["foto"].(string)
	require.True(t, ok)
	// Имя аватара получает префикс владельца.
	assert.True(t, strings.HasPrefix(stored, "avatar_Ana_"), stored)

	rec = doJSON(t, h, http.MethodGet, "/uploads/"+stored, uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/perfil/Ana", uaWindows, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, stored, decodeBody(t, rec)["foto"])
}

func TestAvatarPrefixSurvivesPathInFilename(t *testing.T) {
	h, _ := newTestHandler(t)
	register(t, h, "Bia", "pw")

	// Имя файла с разделителем пути не должно срезать префикс владельца:
	// иначе Bia могла бы перезаписать чужой аватар именем вида
	// "x/avatar_Ana_face.png".
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user", "Bia"))
	fw, err := mw.CreateFormFile("foto", "x/avatar_Ana_face.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/atualizar_foto", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, ok := decodeBody(t, rec)["foto"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(stored, "avatar_Bia_"), stored)
}

func TestRegisterRecordsDeviceAndIP(t *testing.T) {
	h, store := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/cadastro", uaAndroid,
		map[string]string{"user": "Ana", "senha": "pw"})
	require.Equal(t, http.StatusCreated, rec.Code)

	prof, err := store.GetProfile(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceMobile, prof.Device)
	assert.Equal(t, "10.1.2.3", prof.IP)
}
