// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package i18n provides the localized string tables for the chat client.
//
// Three locales are supported: Russian (default UI language of the
// assistant), Kazakh, and English. The backend expects its own language
// codes ("ru" / "kk"), which APICode maps to.
package i18n

import (
	"sync"

	"golang.org/x/text/language"
)

// =============================================================================
// LOCALES
// =============================================================================

// Locale identifies one of the supported UI languages.
type Locale string

const (
	LocaleRU Locale = "ru"
	LocaleKK Locale = "kk"
	LocaleEN Locale = "en"
)

// DefaultLocale is used when nothing is stored and the environment gives no hint.
const DefaultLocale = LocaleRU

var supported = []language.Tag{
	language.Russian, // index 0 == matcher default
	language.Kazakh,
	language.English,
}

var matcher = language.NewMatcher(supported)

// Match resolves an arbitrary BCP 47 tag (e.g. from $LANG or config) to the
// closest supported locale.
func Match(tag string) Locale {
	t, err := language.Parse(tag)
	if err != nil {
		return DefaultLocale
	}
	_, idx, _ := matcher.Match(t)
	switch idx {
	case 1:
		return LocaleKK
	case 2:
		return LocaleEN
	default:
		return LocaleRU
	}
}

// Valid reports whether l is one of the supported locales.
func Valid(l Locale) bool {
	return l == LocaleRU || l == LocaleKK || l == LocaleEN
}

// APICode returns the language code the backend expects. The chat API only
// distinguishes Russian and Kazakh; English sessions fall back to Russian.
func (l Locale) APICode() string {
	if l == LocaleKK {
		return "kk"
	}
	return "ru"
}

// =============================================================================
// STRING TABLES
// =============================================================================

var tables = map[Locale]map[string]string{
	LocaleRU: {
		"chat.greeting":            "Здравствуйте! Я цифровой помощник Бюро национальной статистики. Чем могу помочь?",
		"chat.error":               "Произошла ошибка при обработке запроса. Пожалуйста, попробуйте ещё раз.",
		"chat.typing":              "Помощник печатает",
		"chat.placeholder":         "Введите вопрос...",
		"chat.busy":                "Дождитесь окончания ответа.",
		"sidebar.deleteFailed":     "Не удалось удалить чат.",
		"sidebar.newChat":          "Новый чат",
		"sidebar.sessions":         "Чаты",
		"feedback.like":            "Хороший ответ",
		"feedback.dislike":         "Плохой ответ",
		"feedback.thanks":          "Спасибо за ваш отзыв!",
		"feedback.promptText":      "Расскажите, что было не так с ответом — это поможет нам стать лучше.",
		"feedback.textRequired":    "Пожалуйста, опишите проблему перед отправкой.",
		"file.attachment":          "Файл",
		"table.rows":               "строк",
		"bin.start":               "Режим форм отчетности: БИН %s, год %s.",
		"bin.invalid":             "Неверная команда. Формат: /bin <12 цифр> [год].",
	},
	LocaleKK: {
		"chat.greeting":            "Сәлеметсіз бе! Мен Ұлттық статистика бюросының цифрлық көмекшісімін. Қалай көмектесе аламын?",
		"chat.error":               "Сұрауды өңдеу кезінде қате пайда болды. Қайталап көріңіз.",
		"chat.typing":              "Көмекші жазып жатыр",
		"chat.placeholder":         "Сұрағыңызды енгізіңіз...",
		"chat.busy":                "Жауап аяқталғанын күтіңіз.",
		"sidebar.deleteFailed":     "Чатты жою мүмкін болмады.",
		"sidebar.newChat":          "Жаңа чат",
		"sidebar.sessions":         "Чаттар",
		"feedback.like":            "Жақсы жауап",
		"feedback.dislike":         "Нашар жауап",
		"feedback.thanks":          "Пікіріңізге рахмет!",
		"feedback.promptText":      "Жауаптың несі дұрыс болмағанын айтыңыз — бұл бізге жақсаруға көмектеседі.",
		"feedback.textRequired":    "Жібермес бұрын мәселені сипаттаңыз.",
		"file.attachment":          "Файл",
		"table.rows":               "жол",
		"bin.start":               "Есептілік нысандары режимі: БСН %s, %s жыл.",
		"bin.invalid":             "Қате команда. Пішімі: /bin <12 сан> [жыл].",
	},
	LocaleEN: {
		"chat.greeting":            "Hello! I am the digital assistant of the National Bureau of Statistics. How can I help?",
		"chat.error":               "An error occurred while processing the request. Please try again.",
		"chat.typing":              "Assistant is typing",
		"chat.placeholder":         "Type a question...",
		"chat.busy":                "Wait for the current answer to finish.",
		"sidebar.deleteFailed":     "Failed to delete the chat.",
		"sidebar.newChat":          "New chat",
		"sidebar.sessions":         "Chats",
		"feedback.like":            "Good answer",
		"feedback.dislike":         "Bad answer",
		"feedback.thanks":          "Thank you for your feedback!",
		"feedback.promptText":      "Tell us what was wrong with the answer — it helps us improve.",
		"feedback.textRequired":    "Please describe the problem before submitting.",
		"file.attachment":          "File",
		"table.rows":               "rows",
		"bin.start":               "Reporting forms mode: BIN %s, year %s.",
		"bin.invalid":             "Invalid command. Format: /bin <12 digits> [year].",
	},
}

var (
	mu     sync.RWMutex
	active = DefaultLocale
)

// SetActive switches the process-wide UI locale. Invalid locales are ignored.
func SetActive(l Locale) {
	if !Valid(l) {
		return
	}
	mu.Lock()
	active = l
	mu.Unlock()
}

// Active returns the current process-wide UI locale.
func Active() Locale {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// T looks up a string in the active locale, falling back to Russian and
// finally to the key itself so a missing entry is visible rather than blank.
func T(key string) string {
	return For(Active(), key)
}

// For looks up a string in a specific locale.
func For(l Locale, key string) string {
	if s, ok := tables[l][key]; ok {
		return s
	}
	if s, ok := tables[LocaleRU][key]; ok {
		return s
	}
	return key
}
