package domain

import (
	"errors"

	"golang.org/x/text/language"
)

const genericMessageKey = "generic"

var messageLanguages = []language.Tag{language.English, language.Indonesian}

var messageMatcher = language.NewMatcher(messageLanguages)

var userMessages = map[language.Tag]map[string]string{
	language.English: {
		"rate_limited":               "The generation service is busy right now. Wait a moment and try again.",
		"content_policy_violation":   "This prompt or reference was blocked by the provider's content policy. Adjust it and try again.",
		"timeout":                    "The clip took too long to generate. Try again or switch models.",
		"provider_failure":           "The provider could not finish this clip. Try again or switch models.",
		"submission_failed":          "The provider rejected this request. Try again or switch models.",
		"signing_failed":             "The media link could not be refreshed. Reload to try again.",
		"unknown_clip_type":          "This clip type is not supported.",
		"missing_required_reference": "This clip type needs its start and end references filled in before generating.",
		"invalid_timeline":           "One of the reference slots is invalid. Check frame positions and strengths.",
		"no_eligible_model":          "No model can generate this clip configuration.",
		"invalid_prompt":             "Write a prompt before generating.",
		genericMessageKey:            "Something went wrong. Try again or switch models.",
	},
	language.Indonesian: {
		"rate_limited":               "Layanan generasi sedang sibuk. Tunggu sebentar lalu coba lagi.",
		"content_policy_violation":   "Prompt atau referensi ini diblokir oleh kebijakan konten penyedia. Ubah lalu coba lagi.",
		"timeout":                    "Klip terlalu lama dibuat. Coba lagi atau ganti model.",
		"provider_failure":           "Penyedia gagal menyelesaikan klip ini. Coba lagi atau ganti model.",
		"submission_failed":          "Penyedia menolak permintaan ini. Coba lagi atau ganti model.",
		"signing_failed":             "Tautan media tidak dapat diperbarui. Muat ulang untuk mencoba lagi.",
		"unknown_clip_type":          "Jenis klip ini tidak didukung.",
		"missing_required_reference": "Jenis klip ini membutuhkan referensi awal dan akhir sebelum dibuat.",
		"invalid_timeline":           "Salah satu slot referensi tidak valid. Periksa posisi frame dan kekuatannya.",
		"no_eligible_model":          "Tidak ada model yang dapat membuat konfigurasi klip ini.",
		"invalid_prompt":             "Tulis prompt sebelum membuat klip.",
		genericMessageKey:            "Terjadi kesalahan. Coba lagi atau ganti model.",
	},
}

// UserMessage returns the end-user message for err in the best matching
// locale. Unknown errors get the generic "try again or switch models" text.
func UserMessage(err error, locale string) string {
	tag := matchLocale(locale)
	table := userMessages[tag]
	if err == nil {
		return ""
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) && jobErr != nil {
		err = jobErr.Kind
	}
	if msg, ok := table[ErrorCode(err)]; ok {
		return msg
	}
	return table[genericMessageKey]
}

// UserMessageForText classifies raw provider text and returns its message.
func UserMessageForText(raw, locale string) string {
	return UserMessage(ClassifyProviderError(raw), locale)
}

func matchLocale(locale string) language.Tag {
	if locale == "" {
		return language.English
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := messageMatcher.Match(tags...)
	return messageLanguages[idx]
}
