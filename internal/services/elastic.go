package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"cedra_storefront/internal/models"
)

const ProductIndexName = "products"

var ErrSearchUnavailable = errors.New("elasticsearch non configuré")

// ProductIndex maintient l'index de recherche plein texte des produits.
// Postgres reste la source de vérité : l'index ne renvoie que des ids.
type ProductIndex struct {
	es    *elasticsearch.Client
	index string
}

func NewProductIndex(es *elasticsearch.Client) *ProductIndex {
	return &ProductIndex{es: es, index: ProductIndexName}
}

func (p *ProductIndex) Enabled() bool {
	return p != nil && p.es != nil
}

type productDocument struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
}

// Index ajoute ou remplace le document du produit
func (p *ProductIndex) Index(ctx context.Context, product models.Product) error {
	if !p.Enabled() {
		return ErrSearchUnavailable
	}

	price, _ := product.Price.Float64()
	data, err := json.Marshal(productDocument{
		Title:       product.Title,
		Description: product.Description,
		Category:    product.Category,
		Price:       price,
	})
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      p.index,
		DocumentID: strconv.FormatInt(product.ID, 10),
		Body:       bytes.NewReader(data),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, p.es)
	if err != nil {
		return fmt.Errorf("indexation produit %d: %w", product.ID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("indexation produit %d: %s", product.ID, res.Status())
	}
	return nil
}

// Reindex réécrit le document de chaque produit. Un échec n'interrompt pas
// la boucle : le nombre de documents écrits est retourné avec les erreurs.
func (p *ProductIndex) Reindex(ctx context.Context, products []models.Product) (int, error) {
	if !p.Enabled() {
		return 0, ErrSearchUnavailable
	}

	var (
		indexed int
		errs    []error
	)
	for _, product := range products {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.Index(ctx, product); err != nil {
			errs = append(errs, err)
			continue
		}
		indexed++
	}
	return indexed, errors.Join(errs...)
}

// Delete retire le produit de l'index; un document absent n'est pas une erreur
func (p *ProductIndex) Delete(ctx context.Context, id int64) error {
	if !p.Enabled() {
		return ErrSearchUnavailable
	}

	req := esapi.DeleteRequest{
		Index:      p.index,
		DocumentID: strconv.FormatInt(id, 10),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, p.es)
	if err != nil {
		return fmt.Errorf("suppression index produit %d: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("suppression index produit %d: %s", id, res.Status())
	}
	return nil
}

// Search retourne les ids des produits par pertinence
func (p *ProductIndex) Search(ctx context.Context, query string, size int) ([]int64, error) {
	if !p.Enabled() {
		return nil, ErrSearchUnavailable
	}
	if size <= 0 {
		size = 20
	}

	var buf bytes.Buffer
	q := map[string]any{
		"size":    size,
		"_source": false,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"title^3", "description", "category"},
				"fuzziness": "AUTO",
			},
		},
	}
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, fmt.Errorf("encodage requête: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{p.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, p.es)
	if err != nil {
		return nil, fmt.Errorf("requête elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("recherche elasticsearch: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("décodage réponse elasticsearch: %w", err)
	}

	ids := make([]int64, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
