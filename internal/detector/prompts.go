package detector

import (
	"encoding/json"

	"github.com/lexora-ai/lexora/internal/llm"
	"github.com/lexora-ai/lexora/internal/llmmap"
)

// The prompts below are part of the system's observable contract. The
// consolidation reports carry fixed Markdown section headers that the
// frontend renders by name, so the headers must stay stable across
// versions. All prompts address a Spanish-speaking corporate legal team.

// extractionPrompt compares one internal document page against one bill
// article and asks for a structured relevance verdict. A relevance of 0 is
// the explicit dismiss signal for unrelated pairs.
var extractionPrompt = llmmap.Template{
	User: `# ROL Y EXPERTISE
Eres un abogado senior especializado en derecho corporativo y análisis de impacto regulatorio. Tu función es evaluar cómo las propuestas legislativas afectan las operaciones, obligaciones y riesgos de empresas.

# CONTEXTO
Se te proporcionará:
1. Una página de la memoria o documentación interna de una empresa
2. Un artículo específico de un proyecto de ley en tramitación

Tu tarea es identificar si existe conflicto, discrepancia o impacto directo entre ambos documentos.

# INPUTS

{item}

# TAREA
Realiza un análisis comparativo detallado para determinar:

1. **Identificación de Conflicto**: ¿Existe contradicción, obligación nueva, o impacto directo entre el artículo propuesto y las prácticas/políticas descritas en la memoria?

2. **Evaluación de Relevancia**: Primero determina si existe una relación real entre los documentos. Asigna un score 0-100:
   - 0: SIN RELACIÓN - No existe conexión temática ni impacto entre los documentos
   - 1-20: Relación tangencial o irrelevante
   - 21-40: Impacto menor, informativo
   - 41-60: Impacto moderado, requiere revisión
   - 61-80: Impacto significativo, requiere acción
   - 81-100: Impacto crítico, requiere atención inmediata

3. **Extracción de Textos Relevantes** (solo si nivel_relevancia > 0):
   - Del documento interno: extrae ÚNICAMENTE las frases o párrafos específicos que se relacionan con el artículo
   - Del artículo de ley: extrae ÚNICAMENTE la porción del texto legal que genera el impacto
   - Si nivel_relevancia = 0, puedes usar "Sin relación identificada" en ambos campos

4. **Análisis Técnico-Legal**: Redacta un análisis que incluya:
   - Naturaleza del conflicto o discrepancia identificada
   - Implicaciones operativas y/o de cumplimiento para la empresa
   - Riesgos legales potenciales (multas, sanciones, responsabilidades)

# CRITERIOS DE CALIDAD

- **Precisión**: Extrae solo el texto estrictamente relevante, no copies documentos completos
- **Objetividad**: Basa tu análisis en hechos concretos del texto
- **Concisión**: La descripción del impacto debe ser técnica pero sintética (máximo 3-4 párrafos)
- **Lenguaje Jurídico**: Utiliza terminología legal apropiada para un equipo corporativo
- **Evidencia**: El análisis debe estar respaldado por los extractos proporcionados

# OUTPUT ESPERADO

Proporciona tu análisis en formato estructurado que incluya:
- nivel_relevancia: Score numérico entre 0-100 (usa 0 si NO hay relación justificable)
- extracto_interno: Texto pertinente del documento interno (o "Sin relación identificada" si nivel_relevancia = 0)
- extracto_articulo: Porción relevante del artículo de ley (o "Sin relación identificada" si nivel_relevancia = 0)
- descripcion_impacto: Análisis técnico-legal del impacto, o explicación de por qué no hay relación

IMPORTANTE: Si tras analizar ambos documentos NO encuentras una relación directa y justificable entre ellos, asigna nivel_relevancia = 0. Es preferible descartar correctamente una comparación sin relación que forzar un impacto inexistente.`,
}

// consolidationPrompt merges multiple impact descriptions for one bill
// into a single legal-impact report (~500 words max).
var consolidationPrompt = llmmap.Template{
	System: "Eres un abogado senior especializado en análisis regulatorio corporativo.",
	User: `# ROL
Eres un abogado corporativo que sintetiza análisis de impacto regulatorio.

# CONTEXTO
Se analizó cómo un proyecto de ley afecta a una empresa. Tienes múltiples descripciones de impacto que pueden tener redundancias.

# DESCRIPCIONES A CONSOLIDAR

{item}

# INSTRUCCIONES

Consolida en un reporte único eliminando redundancias. Usa el siguiente formato markdown EXACTO:

## Resumen

[2-3 oraciones sobre el impacto general del proyecto de ley en la empresa]

## Impactos Identificados

- **[Tema 1]**: [Descripción del impacto]
- **[Tema 2]**: [Descripción del impacto]
- **[Tema N]**: [Descripción del impacto]

## Riesgos

- [Riesgo 1 con posibles consecuencias]
- [Riesgo 2 con posibles consecuencias]

## Acciones Sugeridas

- [Acción concreta 1]
- [Acción concreta 2]

# REGLAS

- Usa bullet points (-) para listar items
- Usa **negrita** para destacar temas clave
- Sé conciso y directo (máximo 500 palabras)
- Lenguaje técnico-legal pero claro
- Si no hay riesgos significativos, omite esa sección`,
}

// lowRelevancePrompt explains why a bill's impacts do not require
// immediate attention (~300 words max).
var lowRelevancePrompt = llmmap.Template{
	System: "Eres un abogado corporativo que explica análisis regulatorio.",
	User: `# ROL
Eres un abogado corporativo que analiza por qué ciertos impactos regulatorios no son significativos.

# CONTEXTO
Se analizó cómo un proyecto de ley afecta a una empresa. Los impactos detectados tienen baja relevancia (menos de 50/100). Tu tarea es explicar por qué estos impactos no requieren atención inmediata.

# IMPACTOS ANALIZADOS

{item}

# INSTRUCCIONES

Genera un resumen breve explicando por qué estos impactos no son significativos. Usa el siguiente formato markdown:

## Resumen

[2-3 oraciones indicando que el proyecto de ley tiene impacto limitado o bajo en la empresa]

## Análisis de Relevancia

- **[Tema 1]**: [Por qué no es significativo]
- **[Tema 2]**: [Por qué no es significativo]

## Conclusión

[1-2 oraciones recomendando monitoreo pasivo o indicando que no se requiere acción]

# REGLAS

- Sé conciso (máximo 300 palabras)
- Explica claramente por qué cada impacto es de baja relevancia
- Tono tranquilizador pero profesional
- No inventes riesgos que no existen`,
}

// rawImpactFormat is the structured-output schema for extraction calls.
// Field names and the 0-100 bounds mirror the RawImpact struct tags.
var rawImpactFormat = llm.ResponseFormat{
	Name: "impacto_conflicto",
	Schema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"extracto_interno": {
				"type": "string",
				"description": "Extracto específico del documento interno que presenta conflicto o relación directa con el artículo propuesto."
			},
			"extracto_articulo": {
				"type": "string",
				"description": "Extracto preciso del artículo de la propuesta de ley que genera el conflicto o impacto sobre las operaciones de la empresa."
			},
			"nivel_relevancia": {
				"type": "integer",
				"minimum": 0,
				"maximum": 100,
				"description": "Nivel de relevancia del impacto identificado en escala 0-100, donde 0 representa impacto nulo y 100 impacto crítico."
			},
			"descripcion_impacto": {
				"type": "string",
				"description": "Análisis técnico-legal del impacto regulatorio: naturaleza del conflicto, implicaciones operativas o de cumplimiento, y riesgos legales potenciales."
			}
		},
		"required": ["extracto_interno", "extracto_articulo", "nivel_relevancia", "descripcion_impacto"],
		"additionalProperties": false
	}`),
}
