package economy

import (
	"fmt"
	"time"
)

// RecipeIngredient is one input to a recipe.
type RecipeIngredient struct {
	ResourceID ResourceID `json:"resource_id"`
	Quantity   float64    `json:"quantity"`
}

// Recipe maps ingredients to a result. Crafting actions consume recipes;
// the tick loop only reads them.
type Recipe struct {
	ID               RecipeID           `json:"id"`
	Name             string             `json:"name"`
	ResultResourceID ResourceID         `json:"result_resource_id"`
	ResultQuantity   float64            `json:"result_quantity"`
	SkillRequirement int                `json:"skill_requirement"`
	CraftTime        time.Duration      `json:"craft_time"`
	Ingredients      []RecipeIngredient `json:"ingredients"`
}

// CanCraft reports whether an actor with the given skill holding have can
// craft the recipe once.
func (r *Recipe) CanCraft(skill int, have map[ResourceID]float64) bool {
	if skill < r.SkillRequirement {
		return false
	}
	for _, ing := range r.Ingredients {
		if have[ing.ResourceID] < ing.Quantity {
			return false
		}
	}
	return true
}

// InputValue sums the base value of all ingredients.
func (r *Recipe) InputValue(w *World) float64 {
	total := 0.0
	for _, ing := range r.Ingredients {
		if res, ok := w.Resources[ing.ResourceID]; ok {
			total += res.BaseValue * ing.Quantity
		}
	}
	return total
}

// Validate checks the recipe's references and quantities against w.
func (r *Recipe) Validate(w *World) error {
	if _, ok := w.Resources[r.ResultResourceID]; !ok {
		return fmt.Errorf("recipe %d result %d: %w", r.ID, r.ResultResourceID, ErrNotFound)
	}
	if r.ResultQuantity <= 0 {
		return fmt.Errorf("recipe %d result quantity: %w", r.ID, ErrInvalidQuantity)
	}
	if len(r.Ingredients) == 0 {
		return fmt.Errorf("recipe %d has no ingredients", r.ID)
	}
	for _, ing := range r.Ingredients {
		if _, ok := w.Resources[ing.ResourceID]; !ok {
			return fmt.Errorf("recipe %d ingredient %d: %w", r.ID, ing.ResourceID, ErrNotFound)
		}
		if ing.Quantity <= 0 {
			return fmt.Errorf("recipe %d ingredient %d: %w", r.ID, ing.ResourceID, ErrInvalidQuantity)
		}
	}
	return nil
}
