package turn

import (
	"github.com/MrWong99/voxgate/pkg/provider/tts"
	"github.com/MrWong99/voxgate/pkg/types"
)

// Stage names a step of a turn. Failures are logged and counted per stage.
type Stage string

const (
	StageRecord     Stage = "record"
	StageTranscribe Stage = "transcribe"
	StageComplete   Stage = "complete"
	StageSynthesize Stage = "synthesize"
	StagePlayback   Stage = "playback"
)

type apologyTexts struct {
	recording  string
	processing string
}

var apologies = map[string]apologyTexts{
	"en": {
		recording:  "Sorry, there was an error with the recording. Please try again.",
		processing: "Sorry, I couldn't process your request.",
	},
	"de": {
		recording:  "Entschuldigung, bei der Aufnahme ist ein Fehler aufgetreten. Bitte versuche es noch einmal.",
		processing: "Entschuldigung, ich konnte deine Anfrage nicht bearbeiten.",
	},
	"fr": {
		recording:  "Désolé, une erreur s'est produite lors de l'enregistrement. Veuillez réessayer.",
		processing: "Désolé, je n'ai pas pu traiter votre demande.",
	},
	"es": {
		recording:  "Lo siento, hubo un error con la grabación. Por favor, inténtalo de nuevo.",
		processing: "Lo siento, no pude procesar tu solicitud.",
	},
	"it": {
		recording:  "Scusa, si è verificato un errore con la registrazione. Riprova.",
		processing: "Scusa, non sono riuscito a elaborare la tua richiesta.",
	},
	"pt": {
		recording:  "Desculpe, houve um erro na gravação. Por favor, tente novamente.",
		processing: "Desculpe, não consegui processar o seu pedido.",
	},
	"nl": {
		recording:  "Sorry, er ging iets mis met de opname. Probeer het opnieuw.",
		processing: "Sorry, ik kon je verzoek niet verwerken.",
	},
}

// Apology returns the fallback text for a failure in stage together with the
// language it is written in. Recording failures ask the user to try again;
// every later stage uses the generic processing apology. Languages without a
// translation fall back to English.
func Apology(stage Stage, tag string) (text, lang string) {
	lang = tts.BaseLanguage(tag)
	texts, ok := apologies[lang]
	if !ok {
		lang = types.DefaultLanguage
		texts = apologies[lang]
	}
	if stage == StageRecord {
		return texts.recording, lang
	}
	return texts.processing, lang
}
