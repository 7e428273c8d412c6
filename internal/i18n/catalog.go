// Package i18n holds the user-facing strings of the chat client.
package i18n

import "strings"

type Key string

const (
	NewConversation      Key = "new_conversation"
	ErrAuthentication    Key = "err_authentication"
	ErrQuotaExceeded     Key = "err_quota_exceeded"
	ErrBackend           Key = "err_backend"
	ErrDomainBackend     Key = "err_domain_backend"
	ErrSend              Key = "err_send"
	ErrRollback          Key = "err_rollback"
	NoConversations      Key = "no_conversations"
	NoResults            Key = "no_results"
	ContainsResults      Key = "contains_results"
	ModeGeneral          Key = "mode_general"
	ModeDomain           Key = "mode_domain"
	Welcome              Key = "welcome"
	WelcomeHint          Key = "welcome_hint"
	SearchPlaceholder    Key = "search_placeholder"
	InputGeneral         Key = "input_general"
	InputDomain          Key = "input_domain"
	Sending              Key = "sending"
	ConversationsHeading Key = "conversations_heading"
	YouLabel             Key = "you_label"
	KeyHelp              Key = "key_help"
)

const (
	Spanish       = "es"
	English       = "en"
	DefaultLocale = Spanish
)

var catalogs = map[string]map[Key]string{
	Spanish: {
		NewConversation:      "Nueva conversación",
		ErrAuthentication:    "La API key de OpenAI no es válida. Por favor, verifica tu API key.",
		ErrQuotaExceeded:     "Has excedido el límite de la API de OpenAI. Por favor, verifica tu plan y detalles de facturación.",
		ErrBackend:           "Hubo un error al comunicarse con la API de OpenAI. Por favor, intenta de nuevo más tarde.",
		ErrDomainBackend:     "Hubo un error al consultar la base de conocimiento. Por favor, intenta de nuevo más tarde.",
		ErrSend:              "Error al enviar el mensaje",
		ErrRollback:          "No se pudo retirar el mensaje enviado; la conversación no se guardó correctamente.",
		NoConversations:      "No hay conversaciones",
		NoResults:            "No se encontraron resultados",
		ContainsResults:      "Contiene resultados",
		ModeGeneral:          "Modo Chat GPT",
		ModeDomain:           "Modo Alicia",
		Welcome:              "Bienvenido a AI Chat",
		WelcomeHint:          "Inicia una nueva conversación o continúa una existente",
		SearchPlaceholder:    "Buscar chats...",
		InputGeneral:         "Escribe un mensaje...",
		InputDomain:          "Pregunta sobre Alicia en el País de las Maravillas...",
		Sending:              "Enviando...",
		ConversationsHeading: "Conversaciones",
		YouLabel:             "Tú",
		KeyHelp:              "ctrl+n nueva • ctrl+d eliminar • tab foco • / buscar • ctrl+t modo • ctrl+c salir",
	},
	English: {
		NewConversation:      "New conversation",
		ErrAuthentication:    "The completion API key is not valid. Please check your API key.",
		ErrQuotaExceeded:     "You have exceeded the completion API quota. Please check your plan and billing details.",
		ErrBackend:           "There was an error talking to the completion API. Please try again later.",
		ErrDomainBackend:     "There was an error querying the knowledge base. Please try again later.",
		ErrSend:              "Error sending the message",
		ErrRollback:          "The sent message could not be removed; the conversation was not saved correctly.",
		NoConversations:      "No conversations",
		NoResults:            "No results found",
		ContainsResults:      "Contains results",
		ModeGeneral:          "General mode",
		ModeDomain:           "Alice mode",
		Welcome:              "Welcome to AI Chat",
		WelcomeHint:          "Start a new conversation or continue an existing one",
		SearchPlaceholder:    "Search chats...",
		InputGeneral:         "Type a message...",
		InputDomain:          "Ask about Alice in Wonderland...",
		Sending:              "Sending...",
		ConversationsHeading: "Conversations",
		YouLabel:             "You",
		KeyHelp:              "ctrl+n new • ctrl+d delete • tab focus • / search • ctrl+t mode • ctrl+c quit",
	},
}

// Catalog resolves keys for one locale, falling back to English.
type Catalog struct {
	locale   string
	messages map[Key]string
}

// New returns the catalog for locale. Region suffixes are ignored ("es-AR"
// resolves to "es") and unknown locales get DefaultLocale.
func New(locale string) *Catalog {
	lang := language(locale)
	messages, ok := catalogs[lang]
	if !ok {
		lang = DefaultLocale
		messages = catalogs[lang]
	}
	return &Catalog{locale: lang, messages: messages}
}

func (c *Catalog) Locale() string {
	return c.locale
}

func (c *Catalog) T(k Key) string {
	if s, ok := c.messages[k]; ok {
		return s
	}
	if s, ok := catalogs[English][k]; ok {
		return s
	}
	return string(k)
}

// Supported reports whether locale has its own catalog.
func Supported(locale string) bool {
	_, ok := catalogs[language(locale)]
	return ok
}

func language(locale string) string {
	lang := strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
