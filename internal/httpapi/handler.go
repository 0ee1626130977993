// Package httpapi - тонкий транспорт над ядром: разбор запроса, вызов
// хранилища, плоский JSON-ответ с ключами msg/erro и кодом статуса.
// Решающей логики здесь нет, кроме единственной проверки полномочий
// при смене ролей.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/UkralStul/bunker-community-service/internal/blob"
	"github.com/UkralStul/bunker-community-service/internal/domain"
	"github.com/UkralStul/bunker-community-service/internal/policy"
	"github.com/UkralStul/bunker-community-service/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Handler связывает транспорт с ядром.
type Handler struct {
	store storage.Storage
	blobs blob.Store
	feed  *FeedObserver
	log   *logrus.Logger
}

// NewHandler создает обработчик над хранилищем и хранилищем вложений.
func NewHandler(store storage.Storage, blobs blob.Store, log *logrus.Logger) *Handler {
	return &Handler{
		store: store,
		blobs: blobs,
		feed:  NewFeedObserver(),
		log:   log,
	}
}

// Routes собирает маршрутизатор со всеми конечными точками.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Post("/api/cadastro", h.register)
	r.Post("/api/login", h.login)
	r.Get("/api/comunidade", h.community)
	r.Get("/api/perfil/{handle}", h.profile)
	r.Post("/api/atualizar_foto", h.updateAvatar)
	r.Post("/api/postar", h.createPost)
	r.Post("/api/comentar", h.createComment)
	r.Post("/api/enviar_mensagem", h.sendMessage)
	r.Get("/api/ler_mensagens/{a}/{b}", h.readThread)
	r.Post("/api/alterar_cargo", h.changeRole)

	r.Post("/api/admin/gerenciar_post", h.reviewPost)
	r.Post("/api/admin/banir", h.ban)
	r.Get("/api/admin/espionar/{handle}", h.surveil)

	r.Get("/uploads/{name}", h.serveBlob)
	r.Get("/ws/feed", h.feedSocket)
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": ww.Status(),
			"took":   time.Since(start).String(),
		}).Info("request")
	})
}

// === Identity Endpoints ===

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"user"`
		Secret string `json:"senha"`
	}
	if err := decode(r, &req); err != nil || req.Handle == "" || req.Secret == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	device := policy.ClassifyDevice(r.UserAgent())
	_, err := h.store.RegisterUser(r.Context(), req.Handle, req.Secret, clientIP(r), device)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMsg(w, http.StatusCreated, "Registrado no Bunker!")
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"user"`
		Secret string `json:"senha"`
	}
	if err := decode(r, &req); err != nil || req.Handle == "" || req.Secret == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	device := policy.ClassifyDevice(r.UserAgent())
	user, err := h.store.Authenticate(r.Context(), req.Handle, req.Secret, device)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, user)
}

func (h *Handler) community(w http.ResponseWriter, r *http.Request) {
	feed, err := h.store.ListFeed(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, feed)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	prof, err := h.store.GetProfile(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, prof)
}

func (h *Handler) updateAvatar(w http.ResponseWriter, r *http.Request) {
	handle := r.FormValue("user")
	file, header, err := r.FormFile("foto")
	if err != nil || handle == "" {
		h.respondErro(w, http.StatusBadRequest, "Falha")
		return
	}
	defer file.Close()

	// Аватары получают префикс владельца, чтобы пользователи не
	// перезаписывали файлы друг друга одинаковыми именами. Имя файла
	// очищается до склейки: иначе путь в имени срезал бы префикс.
	stored, err := h.saveUpload("avatar_"+blob.Sanitize(handle)+"_"+blob.Sanitize(header.Filename), file)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.store.SetAvatar(r.Context(), handle, stored); err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"foto": stored})
}

// === Moderation Endpoints ===

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	post := &domain.Post{
		Author:     r.FormValue("autor"),
		Title:      r.FormValue("titulo"),
		Body:       r.FormValue("conteudo"),
		AuthorRole: r.FormValue("cargo"),
	}
	if post.Author == "" || post.Title == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		stored, err := h.saveUpload(header.Filename, file)
		if err != nil {
			h.writeError(w, err)
			return
		}
		post.Attachment = stored
	}

	post, err := h.store.CreatePost(r.Context(), post)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.feed.Broadcast(FeedEvent{Kind: "post", Post: post})
	h.respond(w, http.StatusOK, map[string]string{"msg": "Enviado!", "status": post.Status})
}

func (h *Handler) reviewPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID string `json:"post_id"`
		Action string `json:"acao"`
	}
	if err := decode(r, &req); err != nil || req.PostID == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	action := storage.ReviewAction(req.Action)
	if action != storage.ReviewAccept && action != storage.ReviewReject {
		h.respondErro(w, http.StatusBadRequest, "Ação desconhecida")
		return
	}
	if err := h.store.ReviewPost(r.Context(), req.PostID, action); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMsg(w, http.StatusOK, "Ação executada com sucesso")
}

func (h *Handler) ban(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target_user"`
	}
	if err := decode(r, &req); err != nil || req.Target == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}
	if err := h.store.BanUser(r.Context(), req.Target); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMsg(w, http.StatusOK, "Usuário banido do Bunker!")
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorRole string `json:"admin_cargo"`
		Target    string `json:"target_user"`
		NewRole   string `json:"novo_cargo"`
	}
	if err := decode(r, &req); err != nil || req.Target == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	if !policy.CanStaff(req.ActorRole) {
		h.respondErro(w, http.StatusForbidden, "Você não tem autoridade para isso!")
		return
	}
	if err := h.store.ChangeRole(r.Context(), req.Target, req.NewRole); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMsg(w, http.StatusOK, "Hierarquia atualizada!")
}

// === Ledger Endpoints ===

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostID string `json:"post_id"`
		Author string `json:"autor"`
		Text   string `json:"texto"`
	}
	if err := decode(r, &req); err != nil || req.Author == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	comment, err := h.store.CreateComment(r.Context(), &domain.Comment{
		PostID: req.PostID,
		Author: req.Author,
		Text:   req.Text,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.feed.Broadcast(FeedEvent{Kind: "comment", Comment: comment})
	h.respondMsg(w, http.StatusOK, "OK")
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	msg := &domain.Message{
		Sender:    r.FormValue("remetente"),
		Recipient: r.FormValue("destinatario"),
		Text:      r.FormValue("texto"),
	}
	if msg.Sender == "" || msg.Recipient == "" {
		h.respondErro(w, http.StatusBadRequest, "Campos obrigatórios ausentes")
		return
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		stored, err := h.saveUpload(header.Filename, file)
		if err != nil {
			h.writeError(w, err)
			return
		}
		msg.Attachment = stored
	}

	if _, err := h.store.CreateMessage(r.Context(), msg); err != nil {
		h.writeError(w, err)
		return
	}
	h.respondMsg(w, http.StatusOK, "OK")
}

func (h *Handler) readThread(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.GetThread(r.Context(), chi.URLParam(r, "a"), chi.URLParam(r, "b"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, msgs)
}

func (h *Handler) surveil(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.store.SurveilMessages(r.Context(), chi.URLParam(r, "handle"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, http.StatusOK, msgs)
}

// === Blob Endpoints ===

func (h *Handler) serveBlob(w http.ResponseWriter, r *http.Request) {
	data, err := h.blobs.Serve(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) saveUpload(name string, file multipart.File) (string, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return "", err
	}
	return h.blobs.Save(name, data)
}

// === Live Feed ===

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (h *Handler) feedSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, events := h.feed.Subscribe()
	defer h.feed.Unsubscribe(id)

	// Читатель нужен только чтобы заметить закрытие соединения клиентом.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// === Helpers ===

func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// clientIP извлекает адрес вызывающего из запроса. Значение недоверенное
// и используется только как метаданные учетной записи.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) respondMsg(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"msg": msg})
}

func (h *Handler) respondErro(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"erro": msg})
}

// writeError отображает таксономию ошибок ядра в коды статуса. Неожиданные
// сбои хранилища уходят как 500 с исходным текстом.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrDuplicateHandle):
		h.respondErro(w, http.StatusBadRequest, "Este nome já está em uso!")
	case errors.Is(err, domain.ErrInvalidCredentials):
		h.respondErro(w, http.StatusUnauthorized, "Nome ou senha incorretos!")
	case errors.Is(err, domain.ErrBanned):
		h.respondErro(w, http.StatusForbidden, "Você foi banido deste Bunker!")
	case errors.Is(err, domain.ErrForbidden):
		h.respondErro(w, http.StatusForbidden, "Você não tem autoridade para isso!")
	case errors.Is(err, domain.ErrNotFound):
		h.respondErro(w, http.StatusNotFound, "Não encontrado")
	default:
		h.log.WithError(err).Error("storage failure")
		h.respondErro(w, http.StatusInternalServerError, err.Error())
	}
}
