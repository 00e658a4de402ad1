package llm

// Purpose keys the prompt table together with the language code.
type Purpose string

const (
	PurposeSummary  Purpose = "summary"
	PurposeMetadata Purpose = "metadata"
	PurposeTable    Purpose = "table"
	PurposeVisual   Purpose = "visual"
)

// Prompt templates are data, keyed by (purpose, language). English is the
// fallback for any unsupported language.
var systemPrompts = map[Purpose]map[string]string{
	PurposeSummary: {
		"en": `You are a librarian, performing indexing of the library.
For every provided entry, you have different information available. Write a short summary
(up to 6-7 sentences) for it, and a one-sentence search description. Only include semantic
information useful to search this document. If an abstract is found in the information
provided, return it instead of writing a summary. Do not include information about article
structure, number of pages, etc. If no information is found, return empty strings.
Return output as raw json without any extra characters, according to schema
{"content_summary": summary you extracted, "search_description": one-sentence description}`,
		"de": `Sie sind Bibliothekar und führen die Indizierung der Bibliothek durch.
Für jeden bereitgestellten Eintrag stehen Ihnen unterschiedliche Informationen zur Verfügung.
Schreiben Sie eine kurze Zusammenfassung (bis zu 6-7 Sätze) und eine einzeilige Suchbeschreibung.
Fügen Sie nur semantische Informationen ein, die für die Suche in diesem Dokument nützlich sind.
Wenn eine Zusammenfassung gefunden wird, geben Sie diese zurück, anstatt eine neue zu schreiben.
Fügen Sie keine Informationen über Artikelstruktur, Seitenzahl usw. ein.
Wenn keine Informationen gefunden werden, geben Sie leere Zeichenfolgen zurück.
Geben Sie die Ausgabe als Roh-JSON ohne zusätzliche Zeichen zurück, gemäß dem Schema
{"content_summary": Zusammenfassung, "search_description": einzeilige Beschreibung}`,
	},
	PurposeMetadata: {
		"en": `You are a librarian, performing indexing of the library.
For every provided entry, you have different information available. Your task is to extract
metadata from the document. Metadata includes: title, document type, people involved, the
most relevant date mentioned in the document, and the document's language.
If a title is not present, create it; the title should consist of at least 8-10 words to
describe the document. If any of people, date, language are not present, exclude them from
the response. Make people a list of strings, each string a full name. For the date use the
format YYYY-MM-DD. For the language use a two-letter ISO code.
Return output as raw json without any extra characters, according to schema
{"title": title, "document_type": type, "people": people, "mentioned_date": date, "detected_language": language}`,
		"de": `Sie sind Bibliothekar und führen die Indizierung der Bibliothek durch.
Für jeden bereitgestellten Eintrag stehen Ihnen unterschiedliche Informationen zur Verfügung.
Ihre Aufgabe besteht darin, Metadaten aus dem Dokument zu extrahieren. Zu den Metadaten gehören:
Titel, Dokumenttyp, beteiligte Personen, das relevanteste im Dokument genannte Datum und die
Sprache des Dokuments. Wenn kein Titel vorhanden ist, erstellen Sie ihn; der Titel sollte aus
mindestens 8-10 Wörtern bestehen. Wenn Personen, Datum oder Sprache nicht vorhanden sind,
schließen Sie sie von der Antwort aus. Erstellen Sie für die Personen eine Liste von
Zeichenfolgen. Verwenden Sie für das Datum das Format JJJJ-MM-TT, für die Sprache einen
zweibuchstabigen ISO-Code.
Geben Sie die Ausgabe als reines JSON ohne zusätzliche Zeichen zurück, gemäß dem Schema
{"title": Titel, "document_type": Typ, "people": Personen, "mentioned_date": Datum, "detected_language": Sprache}`,
	},
	PurposeTable: {
		"en": `You are a librarian, performing indexing of the library.
You will be provided with a table encoded as HTML. Write a very short summary
(3-4 sentences) for it. Only include semantic information useful to find this table.
If no information is found, return empty string.
Return output as raw json without any extra characters, according to schema
{"description": description you extracted}`,
		"de": `Sie sind Bibliothekar und führen eine Indexierung der Bibliothek durch.
Sie erhalten eine als HTML kodierte Tabelle. Schreiben Sie eine sehr kurze Zusammenfassung
(3-4 Sätze) dazu. Fügen Sie nur semantische Informationen ein, die zum Auffinden dieser
Tabelle nützlich sind. Wenn keine Informationen gefunden werden, geben Sie eine leere
Zeichenfolge zurück. Geben Sie die Ausgabe als reines JSON ohne zusätzliche Zeichen zurück,
gemäß dem Schema {"description": Beschreibung, die Sie extrahiert haben}`,
	},
	PurposeVisual: {
		"en": "You will receive a page of the document. Summarize the content in several sentences (no more than 250 words).",
		"de": "Sie erhalten eine Seite des Dokuments. Fassen Sie den Inhalt in mehreren Sätzen zusammen (nicht mehr als 250 Wörter).",
	},
}

// SystemPrompt resolves the template for a purpose and language, falling
// back to English.
func SystemPrompt(purpose Purpose, lang string) string {
	table := systemPrompts[purpose]
	if p, ok := table[lang]; ok {
		return p
	}
	return table["en"]
}

// PromptLanguage narrows a document language to one the prompt table
// supports.
func PromptLanguage(lang string) string {
	if _, ok := systemPrompts[PurposeSummary][lang]; ok {
		return lang
	}
	return "en"
}
