package detect

import (
	"encoding/json"
	"log"
	"net/http"
)

// DefaultsHandler возвращает пороги детектора для всех уровней обработки
// @Summary Пороги детектора
// @Description Возвращает производные пороги для уровней basic, standard и advanced
// @Tags Detector
// @Produce json
// @Param mobile query bool false "Применить мобильные поправки"
// @Success 200 {object} map[string]interface{}
// @Router /api/detector/defaults [get]
func DefaultsHandler(w http.ResponseWriter, r *http.Request) {
	mobile := r.URL.Query().Get("mobile") == "true"

	levels := map[ProcessingLevel]Thresholds{
		LevelBasic:    ThresholdsFor(LevelBasic, mobile),
		LevelStandard: ThresholdsFor(LevelStandard, mobile),
		LevelAdvanced: ThresholdsFor(LevelAdvanced, mobile),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"mobile": mobile,
		"levels": levels,
	}); err != nil {
		log.Printf("[ERROR] Failed to encode detector defaults: %v", err)
	}
}
