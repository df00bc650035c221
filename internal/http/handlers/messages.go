package handlers

// Error codes shared between the handlers and the message catalog. The four
// codes mirroring domain.FailureClass keep their string values so API clients
// see the same vocabulary in both places.
const (
	codeBadRequest         = "bad_request"
	codeInvalidInput       = "invalid_input"
	codeBucketConflict     = "bucket_conflict"
	codeJobFailed          = "job_failed"
	codeTimedOut           = "timed_out"
	codeRetrieveFailed     = "retrieve_failed"
	codeListFailed         = "list_failed"
	codeNotFound           = "not_found"
	codeInternal           = "internal"
	codeHistoryUnavailable = "history_unavailable"
)

var messages = map[string]map[string]string{
	"en": {
		codeBadRequest:         "invalid payload",
		codeInvalidInput:       "the request was rejected before submission, adjust the prompt or parameters",
		codeBucketConflict:     "the output bucket belongs to another project",
		codeJobFailed:          "video generation failed, try a different prompt",
		codeTimedOut:           "video generation is still running, try again later",
		codeRetrieveFailed:     "the video finished but could not be retrieved",
		codeListFailed:         "could not list the video library",
		codeNotFound:           "not found",
		codeInternal:           "internal error",
		codeHistoryUnavailable: "generation history is not configured",
	},
	"id": {
		codeBadRequest:         "payload tidak valid",
		codeInvalidInput:       "permintaan ditolak sebelum dikirim, periksa prompt atau parameternya",
		codeBucketConflict:     "bucket keluaran milik proyek lain",
		codeJobFailed:          "pembuatan video gagal, coba prompt lain",
		codeTimedOut:           "pembuatan video masih berjalan, coba lagi nanti",
		codeRetrieveFailed:     "video selesai tetapi tidak dapat diambil",
		codeListFailed:         "tidak dapat memuat pustaka video",
		codeNotFound:           "tidak ditemukan",
		codeInternal:           "kesalahan internal",
		codeHistoryUnavailable: "riwayat pembuatan belum dikonfigurasi",
	},
}

func message(locale, code string) string {
	if m, ok := messages[locale]; ok {
		if msg, ok := m[code]; ok {
			return msg
		}
	}
	if msg, ok := messages["en"][code]; ok {
		return msg
	}
	return code
}
